package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// loadOrCreateKeypair reads a hex-encoded ed25519 seed from path, or
// generates and persists one on first run — every role signs something
// with this identity (a miner's minted blocks, a client's tx requests).
func loadOrCreateKeypair(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		seed, decodeErr := hex.DecodeString(string(data))
		if decodeErr != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("keypair: %s does not hold a valid hex-encoded ed25519 seed", path)
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keypair: reading %s: %w", path, err)
	}

	_, priv, genErr := ed25519.GenerateKey(rand.Reader)
	if genErr != nil {
		return nil, fmt.Errorf("keypair: generating: %w", genErr)
	}
	seed := priv.Seed()
	if writeErr := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600); writeErr != nil {
		return nil, fmt.Errorf("keypair: writing %s: %w", path, writeErr)
	}
	return priv, nil
}
