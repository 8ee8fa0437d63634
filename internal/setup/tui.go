// Package setup implements the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/walletsync/config"
	"github.com/vadiminshakov/walletsync/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

const header = "WALLETSYNC CONFIG WIZARD"

// Answers are the wizard inputs.
type Answers struct {
	Chains        []string
	Provider      string
	SolanaWatch   string
	EthereumWatch string
	PollInterval  string
	Feed          string
	SolanaPrice   string
	EthereumPrice string
	Listen        string
	HistoryDir    string
}

// DefaultAnswers are the values preselected in the wizard.
func DefaultAnswers() Answers {
	return Answers{
		Chains:        []string{domain.ChainSolana.String(), domain.ChainEthereum.String()},
		Provider:      config.ProviderBridge,
		PollInterval:  "10s",
		Feed:          config.FeedBinance,
		SolanaPrice:   "150",
		EthereumPrice: "3500",
		Listen:        ":8080",
		HistoryDir:    "./wal/wallets",
	}
}

// RunTUI launches the terminal configuration wizard and writes the config to path.
func RunTUI(path string) error {
	a := DefaultAnswers()
	var confirm bool

	screen := func(step string) {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render(header))
		fmt.Println(stepStyle.Render(step))
	}

	// step 1: chains
	screen("STEP 1: CHAINS")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Pick the wallets to keep in sync.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Chains").
				Options(
					huh.NewOption("Solana (Phantom)", domain.ChainSolana.String()).Selected(true),
					huh.NewOption("Ethereum (MetaMask)", domain.ChainEthereum.String()).Selected(true),
				).
				Validate(func(v []string) error {
					if len(v) == 0 {
						return fmt.Errorf("select at least one chain")
					}
					return nil
				}).
				Value(&a.Chains),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: provider
	screen("STEP 2: WALLET PROVIDER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How are wallets reached?").
				Options(
					huh.NewOption("Browser wallet through the dashboard page", config.ProviderBridge),
					huh.NewOption("Watch a fixed address", config.ProviderWatch),
				).
				Value(&a.Provider),
		),
	).Run()
	if err != nil {
		return err
	}

	if a.Provider == config.ProviderWatch {
		screen("STEP 2: WATCH ADDRESSES")
		var fields []huh.Field
		if a.has(domain.ChainSolana) {
			fields = append(fields, huh.NewInput().
				Title("Solana address").
				Value(&a.SolanaWatch).
				Validate(addressValidator(domain.ChainSolana)))
		}
		if a.has(domain.ChainEthereum) {
			fields = append(fields, huh.NewInput().
				Title("Ethereum address").
				Value(&a.EthereumWatch).
				Validate(addressValidator(domain.ChainEthereum)))
		}
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return err
		}
	}

	// step 3: timing and prices
	screen("STEP 3: TIMING AND PRICES")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Poll Interval").
				Description("Duration string between 1s and 1h (e.g. 10s, 1m)").
				Value(&a.PollInterval).
				Validate(validateInterval),
			huh.NewSelect[string]().
				Title("Price Feed").
				Options(
					huh.NewOption("Binance", config.FeedBinance),
					huh.NewOption("Bybit", config.FeedBybit),
					huh.NewOption("Hyperliquid", config.FeedHyperliquid),
					huh.NewOption("Static prices only", config.FeedStatic),
				).
				Value(&a.Feed),
			huh.NewInput().
				Title("Fallback SOL price, USD").
				Description("Empty for none").
				Value(&a.SolanaPrice).
				Validate(validatePrice),
			huh.NewInput().
				Title("Fallback ETH price, USD").
				Description("Empty for none").
				Value(&a.EthereumPrice).
				Validate(validatePrice),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: server
	screen("STEP 4: DASHBOARD")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen Address").
				Value(&a.Listen),
			huh.NewInput().
				Title("History Directory").
				Description("Empty disables the snapshot history").
				Value(&a.HistoryDir),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Chains: %v\nProvider: %s\nInterval: %s\nFeed: %s\nListen: %s\n",
		a.Chains, a.Provider, a.PollInterval, a.Feed, a.Listen,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := Write(path, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting walletsync...", path)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

// Build converts wizard answers into the raw yaml config.
func Build(a Answers) config.ConfigTmp {
	tmp := config.ConfigTmp{
		PollInterval: a.PollInterval,
		Listen:       a.Listen,
		HistoryDir:   a.HistoryDir,
		Price:        config.PriceTmp{Feed: a.Feed},
		Chains:       make(map[string]config.ChainTmp, len(a.Chains)),
	}

	for _, name := range a.Chains {
		chain, err := domain.ParseChain(name)
		if err != nil {
			continue
		}
		c := config.ChainTmp{Provider: a.Provider}
		switch chain {
		case domain.ChainSolana:
			c.PriceUSD = a.SolanaPrice
			if a.Provider == config.ProviderWatch {
				c.WatchAddress = a.SolanaWatch
			}
		case domain.ChainEthereum:
			c.PriceUSD = a.EthereumPrice
			if a.Provider == config.ProviderWatch {
				c.WatchAddress = a.EthereumWatch
			}
		}
		tmp.Chains[chain.String()] = c
	}

	return tmp
}

// Write renders the answers as yaml at path after validating them.
func Write(path string, a Answers) error {
	data, err := yaml.Marshal(Build(a))
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if _, err := config.Parse(data); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func (a Answers) has(chain domain.Chain) bool {
	for _, c := range a.Chains {
		if c == chain.String() {
			return true
		}
	}
	return false
}

func addressValidator(chain domain.Chain) func(string) error {
	return func(s string) error {
		_, err := domain.NormalizeAddress(chain, s)
		return err
	}
}

func validateInterval(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration like 10s")
	}
	if d < time.Second || d > time.Hour {
		return fmt.Errorf("must be between 1s and 1h")
	}
	return nil
}

func validatePrice(s string) error {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
