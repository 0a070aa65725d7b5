package sqlstore

import "github.com/tavenor/credstate/core"

var (
	_ core.IssuanceProcessStore         = (*IssuanceProcessStore)(nil)
	_ core.IssuanceProcessStore         = (*CachedIssuanceProcessStore)(nil)
	_ core.HolderCredentialRequestStore = (*HolderCredentialRequestStore)(nil)
)
