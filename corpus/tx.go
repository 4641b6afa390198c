package corpus

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/trailofbits/optik-go/engine"
	"github.com/trailofbits/optik-go/optikerrors"
	"github.com/trailofbits/optik-go/world"
)

// rawTx mirrors the on-disk Echidna transaction shape from spec.md §6,
// including the trailing-apostrophe keys that a key-preserving round trip
// must not drop.
type rawTx struct {
	Call     rawCall   `json:"_call"`
	Src      string    `json:"_src"`
	Dst      string    `json:"_dst"`
	Value    string    `json:"_value"`
	Gas      string    `json:"_gas'"`
	GasPrice string    `json:"_gasprice'"`
	Delay    [2]string `json:"_delay"`
}

type rawCall struct {
	Tag  string
	Name string
	Args []Argument
}

func (c rawCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Tag      string `json:"tag"`
		Contents [2]any `json:"contents"`
	}{c.Tag, [2]any{c.Name, c.Args}})
}

func (c *rawCall) UnmarshalJSON(data []byte) error {
	var env struct {
		Tag      string          `json:"tag"`
		Contents json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Tag != "SolCall" {
		return optikerrors.Echidna(optikerrors.ErrUnsupportedCallTag, "%q", env.Tag)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(env.Contents, &parts); err != nil {
		return err
	}
	if len(parts) == 0 {
		return fmt.Errorf("corpus: empty _call contents")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return err
	}
	var args []Argument
	if len(parts) > 1 {
		var err error
		args, err = decodeArgs(parts[1])
		if err != nil {
			return err
		}
	}
	c.Tag = env.Tag
	c.Name = name
	c.Args = args
	return nil
}

// LoadTx builds an AbstractTx from a single parsed corpus transaction,
// seeding a fresh symbolic variable context with its concrete values under
// the naming scheme from spec.md §4.7: "{txName}_arg{i}" per argument (with
// "_{j}" suffixes for nested/composite contents), plus
// "{txName}_block_num_inc", "{txName}_block_timestamp_inc",
// "{txName}_sender", and "{txName}_value".
func LoadTx(raw rawTx, txName string) (*world.AbstractTx, error) {
	ctx := engine.NewContext()

	for i, a := range raw.Call.Args {
		if err := ValidateType(a); err != nil {
			return nil, err
		}
		a.Seed(ctx, fmt.Sprintf("%s_arg%d", txName, i))
	}

	callData, err := EncodeCall(raw.Call.Name, raw.Call.Args)
	if err != nil {
		return nil, err
	}

	senderAddr := common.HexToAddress(raw.Src)
	senderVar := txName + "_sender"
	ctx.Set(senderVar, new(uint256.Int).SetBytes(senderAddr[:]))

	valueVal, err := parseUint256(raw.Value)
	if err != nil {
		return nil, fmt.Errorf("corpus: _value: %w", err)
	}
	ctx.Set(txName+"_value", valueVal)

	gasLimit, err := parseUint256(raw.Gas)
	if err != nil {
		return nil, fmt.Errorf("corpus: _gas': %w", err)
	}
	gasPrice, err := parseUint256(raw.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("corpus: _gasprice': %w", err)
	}

	tsInc, err := parseUint256(raw.Delay[0])
	if err != nil {
		return nil, fmt.Errorf("corpus: _delay[0]: %w", err)
	}
	bnInc, err := parseUint256(raw.Delay[1])
	if err != nil {
		return nil, fmt.Errorf("corpus: _delay[1]: %w", err)
	}
	blockTimestampVar := txName + "_block_timestamp_inc"
	blockNumVar := txName + "_block_num_inc"
	ctx.Set(blockTimestampVar, tsInc)
	ctx.Set(blockNumVar, bnInc)

	senderValue := engine.Var(senderVar, 160)
	tx := &engine.Transaction{
		Origin:    senderValue,
		Sender:    senderValue,
		Recipient: common.HexToAddress(raw.Dst),
		Value:     engine.Var(txName+"_value", 256),
		Data:      callData,
		GasPrice:  engine.Const(gasPrice),
		GasLimit:  engine.Const(gasLimit),
	}

	return world.NewAbstractTx(tx, engine.Var(blockNumVar, 256), engine.Var(blockTimestampVar, 256), ctx), nil
}

// UpdateTx returns a copy of raw with every field the model overrides
// rewritten: argument values (recursing by tag), the block-info delay pair,
// sender, and value. Fields absent from the model, including the
// trailing-apostrophe gas keys, are carried over untouched.
func UpdateTx(raw rawTx, txName string, model *engine.Context) rawTx {
	updated := raw

	args := make([]Argument, len(raw.Call.Args))
	for i, a := range raw.Call.Args {
		args[i] = a.Update(model, fmt.Sprintf("%s_arg%d", txName, i))
	}
	updated.Call.Args = args

	if v, ok := model.Get(txName + "_block_timestamp_inc"); ok {
		updated.Delay[0] = hexutil.EncodeBig(v.ToBig())
	}
	if v, ok := model.Get(txName + "_block_num_inc"); ok {
		updated.Delay[1] = hexutil.EncodeBig(v.ToBig())
	}
	if v, ok := model.Get(txName + "_sender"); ok {
		updated.Src = lowerHex(addressBytes(v))
	}
	if v, ok := model.Get(txName + "_value"); ok {
		updated.Value = hexutil.EncodeBig(v.ToBig())
	}
	return updated
}

// addressBytes returns the low 20 bytes of v, the convention AbiAddress and
// _src both use to re-derive a 40-hex-digit address from a 256-bit seed.
func addressBytes(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[12:]
}
