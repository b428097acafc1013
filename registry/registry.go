// Package registry publishes application descriptors under contract
// addresses and answers queries about them.
//
// Registry is the boundary to an on-chain factory. Local is an offline
// implementation that keeps descriptor bytes in a storage.CAS and the
// creation events in an append-only log; it is what the nfa command and the
// tests use.
package registry

import (
	"context"
	"errors"
	"time"

	"xdao.co/nfa/descriptor"
)

var (
	ErrNotFound        = errors.New("registry: not found")
	ErrVersionConflict = errors.New("registry: version already registered with a different descriptor")
	ErrInvalidAddress  = errors.New("registry: invalid address")
	ErrInvalidRequest  = errors.New("registry: invalid request")
)

// ContractCreated is the event recorded for each created contract.
type ContractCreated struct {
	Seq       uint64          `json:"seq"`
	Contract  Address         `json:"contract"`
	Owner     Address         `json:"owner"`
	Name      string          `json:"name"`
	Symbol    string          `json:"symbol"`
	VersionID string          `json:"versionId"`
	CodeHash  descriptor.Hash `json:"codeHash"`
	// Descriptor is the CID of the canonical AppInfo encoding.
	Descriptor string    `json:"descriptor"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Registry interface {
	// CreateNFAContract publishes app under a new contract owned by owner.
	// version must be the VersionInfo app carries.
	CreateNFAContract(ctx context.Context, name, symbol string, app descriptor.AppInfo, version descriptor.VersionInfo, owner Address) (Address, error)
	GetAppInfo(ctx context.Context, contract Address) (descriptor.AppInfo, error)
	// ContractsCreated returns every creation event in creation order.
	ContractsCreated(ctx context.Context) ([]ContractCreated, error)
}
