// Package core contains the canonical domain contracts, entities, and
// workflow orchestration for lease-based credential state management. Store
// and adapter packages depend on this package; core must not depend on
// storage-specific or transport-specific code.
package core
