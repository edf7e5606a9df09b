package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alanyoungcy/marketledger/internal/config"
	"github.com/alanyoungcy/marketledger/internal/crypto"
	"github.com/alanyoungcy/marketledger/internal/domain"
)

type signCommand struct {
	Market string `long:"market" required:"true" description:"market id"`
	Result string `long:"result" required:"true" choice:"yes" choice:"no" description:"result to sign"`

	opts *options
}

// Execute signs with the oracle key of the configuration file.
func (c *signCommand) Execute([]string) error {
	cfg, err := config.Load(c.opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Oracle.PrivateKey,
		EncryptedKeyPath: cfg.Oracle.EncryptedKeyPath,
		KeyPassword:      cfg.Oracle.KeyPassword,
	})
	if err != nil {
		return err
	}
	signer, err := crypto.NewOracleSigner(key)
	if err != nil {
		return err
	}
	result, err := domain.ParseSide(c.Result)
	if err != nil {
		return err
	}

	sig, err := signer.SignResolution(c.Market, result)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "oracle %s\n", signer.Address().Hex())
	fmt.Println(sig)
	return nil
}

type encryptKeyCommand struct {
	Out string `short:"o" long:"out" required:"true" description:"path of the encrypted key file"`
}

// Execute reads the key and password from the environment so neither ends
// up in shell history.
func (c *encryptKeyCommand) Execute([]string) error {
	key := os.Getenv("LEDGER_ORACLE_PRIVATE_KEY")
	password := os.Getenv("LEDGER_ORACLE_KEY_PASSWORD")
	if key == "" || password == "" {
		return errors.New("LEDGER_ORACLE_PRIVATE_KEY and LEDGER_ORACLE_KEY_PASSWORD must be set")
	}
	signer, err := crypto.NewOracleSigner(key)
	if err != nil {
		return err
	}

	data, err := crypto.EncryptKey(key, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", c.Out, err)
	}
	fmt.Printf("wrote key for %s to %s\n", signer.Address().Hex(), c.Out)
	return nil
}
