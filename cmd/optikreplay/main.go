// Command optikreplay is a minimal harness for replaying an Echidna-style
// corpus file against deployed contracts. It is not the fuzzer: it wires
// world and corpus together the way a real integration would. It has no
// engine backend of its own; rootEngineFactory panics until a real
// engine.Engine implementation is linked in.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/trailofbits/optik-go/corpus"
	"github.com/trailofbits/optik-go/engine"
	"github.com/trailofbits/optik-go/optiklog"
	"github.com/trailofbits/optik-go/world"
)

var log = optiklog.New("optikreplay")

func main() {
	app := &cli.App{
		Name:  "optikreplay",
		Usage: "replay a corpus file against a deployed contract",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "contract", Usage: "compiled contract file (engine-loadable)", Required: true},
			&cli.StringFlag{Name: "address", Usage: "address to deploy the contract at", Value: "0x1000"},
			&cli.StringFlag{Name: "corpus", Usage: "Echidna-format corpus file", Required: true},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Error("replay failed", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	contractFile := c.String("contract")
	address := common.HexToAddress(c.String("address"))
	corpusFile := c.String("corpus")

	data, err := os.ReadFile(corpusFile)
	if err != nil {
		return fmt.Errorf("reading corpus file: %w", err)
	}

	txs, err := corpus.LoadTxSequence(data)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}

	w := world.NewEVMWorld(rootEngineFactory)
	if _, err := w.Deploy(contractFile, address, common.Address{}, nil, true); err != nil {
		return fmt.Errorf("deploying %s: %w", address, err)
	}
	for _, tx := range txs {
		tx.Tx.Recipient = address
		w.Enqueue(tx)
	}

	stop, err := w.Run()
	if err != nil {
		return fmt.Errorf("run stopped with %s: %w", stop, err)
	}
	log.Info("replay complete", "stop", stop.String(), "txCount", w.CurrentTxNum())
	return nil
}

// rootEngineFactory must be supplied by a real symbolic engine backend; this
// harness deliberately has no default implementation since the engine is an
// external collaborator (see the engine package).
func rootEngineFactory() engine.Engine {
	panic("optikreplay: no engine backend wired; link a real engine.Engine implementation")
}
