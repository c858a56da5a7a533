// marketctl inspects and administers a fixed-order market's registry and
// previews order pricing without settling anything.
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/fixedmarket/market-go/chain"
	"github.com/fixedmarket/market-go/registry"
)

func main() {
	app := &cli.App{
		Name:  "marketctl",
		Usage: "fixed order market admin and preview tool",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db_dir", Value: "./data/registry", Usage: "registry bolt db dir path", EnvVars: []string{"DB_DIR"}},
		},
		Commands: []*cli.Command{
			priceCommand(),
			domainCommand(),
			nonceCommand(),
			whitelistCommand(),
			feeCommand(),
			feeRecipientCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openRegistry(c *cli.Context) (*registry.Bolt, error) {
	return registry.OpenBolt(c.String("db_dir"))
}

func parseAddr(arg string) (common.Address, error) {
	if !common.IsHexAddress(arg) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", arg)
	}
	return common.HexToAddress(arg), nil
}

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:  "price",
		Usage: "preview the settlement price of an order at a point in time",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "start_price", Required: true, Usage: "price at listing or auction start, in base units"},
			&cli.Int64Flag{Name: "end_price", Value: 0, Usage: "decay floor, 0 for fixed price"},
			&cli.Int64Flag{Name: "start", Value: 0, Usage: "auction start unix timestamp, 0 for fixed price"},
			&cli.Int64Flag{Name: "deadline", Required: true, Usage: "expiry unix timestamp"},
			&cli.Int64Flag{Name: "at", Value: 0, Usage: "evaluation unix timestamp, default now"},
			&cli.IntFlag{Name: "decimals", Value: 18, Usage: "token decimals for display"},
		},
		Action: func(c *cli.Context) error {
			order := chain.NewOrder(
				common.Address{1}, common.Address{1}, chain.NativeToken,
				new(big.Int),
				big.NewInt(c.Int64("start_price")),
				big.NewInt(c.Int64("end_price")),
				big.NewInt(c.Int64("start")),
				big.NewInt(c.Int64("deadline")),
			)
			at := c.Int64("at")
			if at == 0 {
				at = time.Now().Unix()
			}
			price, err := chain.CurrentPrice(order, at)
			if err != nil {
				return err
			}
			human := decimal.NewFromBigInt(price, -int32(c.Int("decimals")))
			fmt.Printf("price at %d: %s (%s)\n", at, price.String(), human.String())
			return nil
		},
	}
}

func domainCommand() *cli.Command {
	return &cli.Command{
		Name:  "domain",
		Usage: "print the EIP-712 domain separator for a deployment",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "chain_id", Required: true, EnvVars: []string{"CHAIN_ID"}},
			&cli.StringFlag{Name: "market_addr", Required: true, EnvVars: []string{"MARKET_ADDR"}},
		},
		Action: func(c *cli.Context) error {
			addr, err := parseAddr(c.String("market_addr"))
			if err != nil {
				return err
			}
			domain := chain.NewDomain(big.NewInt(c.Int64("chain_id")), addr)
			fmt.Println(domain.Separator(nil).Hex())
			return nil
		},
	}
}

func nonceCommand() *cli.Command {
	return &cli.Command{
		Name:      "nonce",
		Usage:     "print a seller's current replay counter",
		ArgsUsage: "<seller>",
		Action: func(c *cli.Context) error {
			seller, err := parseAddr(c.Args().First())
			if err != nil {
				return err
			}
			reg, err := openRegistry(c)
			if err != nil {
				return err
			}
			defer reg.Close()
			nonce, err := reg.Nonce(context.Background(), seller)
			if err != nil {
				return err
			}
			fmt.Println(nonce)
			return nil
		},
	}
}

func whitelistCommand() *cli.Command {
	setAction := func(enabled bool) cli.ActionFunc {
		return func(c *cli.Context) error {
			asset, err := parseAddr(c.Args().First())
			if err != nil {
				return err
			}
			reg, err := openRegistry(c)
			if err != nil {
				return err
			}
			defer reg.Close()
			return reg.SetWhitelisted(context.Background(), asset, enabled)
		}
	}

	return &cli.Command{
		Name:  "whitelist",
		Usage: "manage the asset whitelist",
		Subcommands: []*cli.Command{
			{Name: "set", ArgsUsage: "<asset>", Action: setAction(true)},
			{Name: "unset", ArgsUsage: "<asset>", Action: setAction(false)},
			{
				Name:      "check",
				ArgsUsage: "<asset>",
				Action: func(c *cli.Context) error {
					asset, err := parseAddr(c.Args().First())
					if err != nil {
						return err
					}
					reg, err := openRegistry(c)
					if err != nil {
						return err
					}
					defer reg.Close()
					ok, err := reg.IsWhitelisted(context.Background(), asset)
					if err != nil {
						return err
					}
					fmt.Println(ok)
					return nil
				},
			},
		},
	}
}

func feeCommand() *cli.Command {
	return &cli.Command{
		Name:  "fee",
		Usage: "manage per-collection fee rates (parts per 10000)",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				ArgsUsage: "<collection> <rate>",
				Action: func(c *cli.Context) error {
					collection, err := parseAddr(c.Args().Get(0))
					if err != nil {
						return err
					}
					var rate uint64
					if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &rate); err != nil {
						return fmt.Errorf("bad rate %q: %w", c.Args().Get(1), err)
					}
					reg, err := openRegistry(c)
					if err != nil {
						return err
					}
					defer reg.Close()
					return reg.SetCollectionFeeRate(context.Background(), collection, rate)
				},
			},
			{
				Name:      "get",
				ArgsUsage: "<collection>",
				Action: func(c *cli.Context) error {
					collection, err := parseAddr(c.Args().First())
					if err != nil {
						return err
					}
					reg, err := openRegistry(c)
					if err != nil {
						return err
					}
					defer reg.Close()
					rate, err := reg.CollectionFeeRate(context.Background(), collection)
					if err != nil {
						return err
					}
					fmt.Printf("%d (%s%%)\n", rate, decimal.New(int64(rate), -2).String())
					return nil
				},
			},
		},
	}
}

func feeRecipientCommand() *cli.Command {
	return &cli.Command{
		Name:  "fee-recipient",
		Usage: "manage the fee recipient",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				ArgsUsage: "<recipient>",
				Action: func(c *cli.Context) error {
					recipient, err := parseAddr(c.Args().First())
					if err != nil {
						return err
					}
					reg, err := openRegistry(c)
					if err != nil {
						return err
					}
					defer reg.Close()
					return reg.SetFeeRecipient(context.Background(), recipient)
				},
			},
			{
				Name: "get",
				Action: func(c *cli.Context) error {
					reg, err := openRegistry(c)
					if err != nil {
						return err
					}
					defer reg.Close()
					recipient, err := reg.FeeRecipient(context.Background())
					if err != nil {
						return err
					}
					fmt.Println(recipient.Hex())
					return nil
				},
			},
		},
	}
}
