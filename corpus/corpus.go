package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trailofbits/optik-go/engine"
	"github.com/trailofbits/optik-go/optikerrors"
	"github.com/trailofbits/optik-go/world"
)

// NewInputPrefix is the filename prefix the reverse writer uses for newly
// synthesized corpus entries.
const NewInputPrefix = "optik_solved_input"

// filenameSlotLimit bounds the linear filename search; exceeding it without
// finding a free slot is a GenericError per spec.md §7.
const filenameSlotLimit = 100000

// txName returns the synthetic per-transaction variable-name prefix used
// throughout the symbolic seeding scheme: "tx0", "tx1", ...
func txName(i int) string { return fmt.Sprintf("tx%d", i) }

// LoadTxSequence parses a corpus file's contents and builds one AbstractTx
// per entry, in file order.
func LoadTxSequence(data []byte) ([]*world.AbstractTx, error) {
	var raws []rawTx
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("corpus: decoding corpus file: %w", err)
	}
	txs := make([]*world.AbstractTx, len(raws))
	for i, raw := range raws {
		tx, err := LoadTx(raw, txName(i))
		if err != nil {
			return nil, fmt.Errorf("corpus: tx %d: %w", i, err)
		}
		txs[i] = tx
	}
	return txs, nil
}

// StoreNewTxSequence rewrites originalFile's transactions under model and
// writes the result to a fresh file in the same directory, returning its
// path. This implements the prescribed (fixed) reverse-writer behavior:
// it serializes the model-updated data, not the original bytes untouched.
//
// An older variant of this writer persisted the original, unmodified JSON
// to the new file instead of the rewritten one, silently discarding every
// solver-found value; TestStoreNewTxSequence_WritesUpdatedData pins the
// corrected behavior against a regression of that bug.
func StoreNewTxSequence(originalFile string, model *engine.Context) (string, error) {
	data, err := os.ReadFile(originalFile)
	if err != nil {
		return "", err
	}
	var raws []rawTx
	if err := json.Unmarshal(data, &raws); err != nil {
		return "", fmt.Errorf("corpus: decoding corpus file: %w", err)
	}

	newData := make([]rawTx, len(raws))
	for i, raw := range raws {
		newData[i] = UpdateTx(raw, txName(i), model)
	}

	encoded, err := json.Marshal(newData)
	if err != nil {
		return "", err
	}

	newFile, err := AvailableFilename(filepath.Join(filepath.Dir(originalFile), NewInputPrefix), ".txt")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(newFile, encoded, 0o644); err != nil {
		return "", err
	}
	return newFile, nil
}

// AvailableFilename returns "{prefix}_{n}{suffix}" for the smallest
// non-negative n whose file does not already exist, failing once n reaches
// filenameSlotLimit.
func AvailableFilename(prefix, suffix string) (string, error) {
	for n := 0; n < filenameSlotLimit; n++ {
		candidate := fmt.Sprintf("%s_%d%s", prefix, n, suffix)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", optikerrors.Generic(optikerrors.ErrFilenameExhausted, "prefix=%q suffix=%q", prefix, suffix)
}
