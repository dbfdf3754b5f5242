package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgeguard/forgeguard/internal/contracts"
	"github.com/forgeguard/forgeguard/internal/workspace"
)

// loadContractStore reads Forge/Contracts/<type>.md documents from the
// project directory into a contract store. Missing documents are skipped;
// the gate and planner degrade gracefully without them.
func loadContractStore(ctx context.Context, dir, projectID string) (*contracts.MemStore, int, error) {
	store := contracts.NewMemStore()
	base := filepath.Join(dir, workspace.ContractsDirName)

	found := 0
	for _, t := range contracts.Types {
		data, err := os.ReadFile(filepath.Join(base, string(t)+".md"))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading %s contract: %w", t, err)
		}
		err = store.Put(ctx, contracts.Contract{
			ProjectID: projectID,
			Type:      t,
			Content:   string(data),
		})
		if err != nil {
			return nil, 0, err
		}
		found++
	}
	return store, found, nil
}
