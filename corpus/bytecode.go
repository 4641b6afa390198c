package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// compiledArtifact mirrors the subset of a `combined_solc.json` compiler
// artifact this package consumes: a map from "path:ContractName" to its
// compiled fields.
type compiledArtifact struct {
	Contracts map[string]struct {
		Bin string `json:"bin"`
	} `json:"contracts"`
}

// ExtractContractBytecode reads "{cryticDir}/combined_solc.json", selects
// contractName (or the sole contract present if contractName is empty and
// exactly one exists), and writes its hex bytecode to a fresh file under
// tmpDir. The filename embeds a UUID rather than a small random integer to
// make collisions between concurrent fuzzing campaigns on the same host
// effectively impossible.
func ExtractContractBytecode(cryticDir, tmpDir, contractName string) (string, error) {
	data, err := os.ReadFile(filepath.Join(cryticDir, "combined_solc.json"))
	if err != nil {
		return "", err
	}
	var artifact compiledArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return "", fmt.Errorf("corpus: decoding combined_solc.json: %w", err)
	}

	var bin string
	switch {
	case contractName != "":
		entry, ok := artifact.Contracts[contractName]
		if !ok {
			return "", fmt.Errorf("corpus: contract %q not found in combined_solc.json; available: %v", contractName, sortedKeys(artifact.Contracts))
		}
		bin = entry.Bin
	case len(artifact.Contracts) == 1:
		for _, entry := range artifact.Contracts {
			bin = entry.Bin
		}
	default:
		return "", fmt.Errorf("corpus: no contract name given and multiple contracts present; available: %v", sortedKeys(artifact.Contracts))
	}

	outputFile := filepath.Join(tmpDir, fmt.Sprintf("optik_contract_%s.sol", uuid.New().String()))
	if err := os.WriteFile(outputFile, []byte(bin), 0o644); err != nil {
		return "", err
	}
	return outputFile, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
