package corpus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/trailofbits/optik-go/engine"
)

func sampleRawTx(t *testing.T) rawTx {
	t.Helper()
	raw := `{
		"_call": {"tag":"SolCall","contents":["deposit",[{"tag":"AbiUInt","contents":[256,"10"]}]]},
		"_src": "0x1000000000000000000000000000000000000001",
		"_dst": "0x2000000000000000000000000000000000000002",
		"_value": "0x0",
		"_gas'": "0xffffffff",
		"_gasprice'": "0x1",
		"_delay": ["0x1", "0x1"]
	}`
	var tx rawTx
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))
	return tx
}

func TestLoadTx_PreservesApostropheKeys(t *testing.T) {
	raw := sampleRawTx(t)
	require.Equal(t, "0xffffffff", raw.Gas)
	require.Equal(t, "0x1", raw.GasPrice)

	encoded, err := json.Marshal(raw)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"_gas'"`)
	require.Contains(t, string(encoded), `"_gasprice'"`)
}

func TestLoadTx_SeedsExpectedVariables(t *testing.T) {
	raw := sampleRawTx(t)
	abstractTx, err := LoadTx(raw, "tx0")
	require.NoError(t, err)

	_, ok := abstractTx.Ctx.Get("tx0_arg0")
	require.True(t, ok)
	_, ok = abstractTx.Ctx.Get("tx0_sender")
	require.True(t, ok)
	_, ok = abstractTx.Ctx.Get("tx0_value")
	require.True(t, ok)
	_, ok = abstractTx.Ctx.Get("tx0_block_num_inc")
	require.True(t, ok)
	_, ok = abstractTx.Ctx.Get("tx0_block_timestamp_inc")
	require.True(t, ok)
}

func TestUpdateTx_OverridesOnlyModeledFields(t *testing.T) {
	raw := sampleRawTx(t)

	model := engine.NewContext()
	model.Set("tx0_arg0", uint256.NewInt(999))
	model.Set("tx0_value", uint256.NewInt(7))

	updated := UpdateTx(raw, "tx0", model)

	arg0 := updated.Call.Args[0].(AbiUInt)
	require.Equal(t, uint64(999), arg0.Value.Uint64())
	require.Equal(t, "0x7", updated.Value)

	// Untouched fields survive unchanged, including the apostrophe keys.
	require.Equal(t, raw.Src, updated.Src)
	require.Equal(t, raw.Gas, updated.Gas)
	require.Equal(t, raw.GasPrice, updated.GasPrice)
	require.Equal(t, raw.Delay, updated.Delay)
}

func TestUpdateTx_OverridesSenderAndDelay(t *testing.T) {
	raw := sampleRawTx(t)

	model := engine.NewContext()
	newSender := uint256.NewInt(0)
	newSender.SetBytes([]byte{0x30, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03})
	model.Set("tx0_sender", newSender)
	model.Set("tx0_block_num_inc", uint256.NewInt(5))
	model.Set("tx0_block_timestamp_inc", uint256.NewInt(6))

	updated := UpdateTx(raw, "tx0", model)

	require.Equal(t, "0x3000000000000000000000000000000000000003", updated.Src)
	require.Equal(t, "0x5", updated.Delay[1])
	require.Equal(t, "0x6", updated.Delay[0])
}

func TestLoadTxSequence(t *testing.T) {
	data := []byte(`[` + rawTxJSON() + `]`)
	txs, err := LoadTxSequence(data)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func rawTxJSON() string {
	return `{
		"_call": {"tag":"SolCall","contents":["deposit",[{"tag":"AbiUInt","contents":[256,"10"]}]]},
		"_src": "0x1000000000000000000000000000000000000001",
		"_dst": "0x2000000000000000000000000000000000000002",
		"_value": "0x0",
		"_gas'": "0xffffffff",
		"_gasprice'": "0x1",
		"_delay": ["0x1", "0x1"]
	}`
}

func TestStoreNewTxSequence_WritesUpdatedData(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "corpus_input.txt")
	require.NoError(t, os.WriteFile(original, []byte(`[`+rawTxJSON()+`]`), 0o644))

	model := engine.NewContext()
	model.Set("tx0_arg0", uint256.NewInt(4242))

	newFile, err := StoreNewTxSequence(original, model)
	require.NoError(t, err)

	encoded, err := os.ReadFile(newFile)
	require.NoError(t, err)

	var raws []rawTx
	require.NoError(t, json.Unmarshal(encoded, &raws))
	require.Len(t, raws, 1)

	arg0 := raws[0].Call.Args[0].(AbiUInt)
	// A regression of the historical bug would have written back the
	// original, unmodified "10" instead of the solver-found 4242.
	require.Equal(t, uint64(4242), arg0.Value.Uint64())
}

func TestAvailableFilename_SkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "optik_solved_input")
	require.NoError(t, os.WriteFile(prefix+"_0.txt", []byte("x"), 0o644))

	name, err := AvailableFilename(prefix, ".txt")
	require.NoError(t, err)
	require.Equal(t, prefix+"_1.txt", name)
}
