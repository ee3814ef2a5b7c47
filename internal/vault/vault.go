// Package vault exposes the read-only projection of collected user data that vendor calls
// and decisioning consume. Storage and encryption of the vault itself live elsewhere.
package vault

import (
	"context"
	"fmt"
	"sync"

	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

type Address struct {
	Line1   string
	City    string
	State   string
	Zip     string
	Country string
}

// IdentityData is the person-level data a KYC vendor needs.
type IdentityData struct {
	FirstName string
	LastName  string
	Dob       string
	Ssn9      string
	Ssn4      string
	Email     string
	Phone     string
	Address   Address
}

// BeneficialOwner is a person listed on a business with their own scoped vault.
type BeneficialOwner struct {
	ScopedVaultID  id.ScopedVaultID
	OwnershipStake int
}

// BusinessData is the business-level data a KYB vendor needs.
type BusinessData struct {
	Name             string
	Tin              string
	Address          Address
	BeneficialOwners []BeneficialOwner
}

// Reader loads collected data for a scoped vault.
type Reader interface {
	Identity(ctx context.Context, sv id.ScopedVaultID) (*IdentityData, error)
	Business(ctx context.Context, sv id.ScopedVaultID) (*BusinessData, error)
	// Image returns the bytes behind an uploaded document image reference.
	Image(ctx context.Context, ref string) ([]byte, error)
}

// InMemory is a Reader used by the dev server and tests.
type InMemory struct {
	mu         sync.RWMutex
	identities map[id.ScopedVaultID]IdentityData
	businesses map[id.ScopedVaultID]BusinessData
	images     map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{
		identities: make(map[id.ScopedVaultID]IdentityData),
		businesses: make(map[id.ScopedVaultID]BusinessData),
		images:     make(map[string][]byte),
	}
}

func (v *InMemory) PutIdentity(sv id.ScopedVaultID, data IdentityData) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.identities[sv] = data
}

func (v *InMemory) PutBusiness(sv id.ScopedVaultID, data BusinessData) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.businesses[sv] = data
}

func (v *InMemory) PutImage(ref string, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.images[ref] = data
}

func (v *InMemory) Identity(_ context.Context, sv id.ScopedVaultID) (*IdentityData, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	data, ok := v.identities[sv]
	if !ok {
		return nil, fmt.Errorf("identity for %s: %w", sv, sentinel.ErrNotFound)
	}
	return &data, nil
}

func (v *InMemory) Business(_ context.Context, sv id.ScopedVaultID) (*BusinessData, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	data, ok := v.businesses[sv]
	if !ok {
		return nil, fmt.Errorf("business for %s: %w", sv, sentinel.ErrNotFound)
	}
	return &data, nil
}

func (v *InMemory) Image(_ context.Context, ref string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	data, ok := v.images[ref]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", ref, sentinel.ErrNotFound)
	}
	return data, nil
}
