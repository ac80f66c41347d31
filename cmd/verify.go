package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ehn-dcc-development/ehc-verify/common"
	"github.com/ehn-dcc-development/ehc-verify/trustlist"
	"github.com/ehn-dcc-development/ehc-verify/verifier"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [credential]...",
	Short: "Decode and verify HC1 prefixed credentials",
	Run: func(cmd *cobra.Command, args []string) {
		err := viper.BindPFlags(cmd.Flags())
		if err != nil {
			exitWithError(err)
		}

		err = readConfig()
		if err != nil {
			exitWithError(err)
		}

		err = runVerify(args)
		if err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	setVerifyFlags(verifyCmd)
}

func setVerifyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.SortFlags = false

	flags.String("config", "", "path to configuration file (JSON, TOML, YAML or INI)")
	flags.String("certs-file", "", "trust list in CBOR format; if not given it is downloaded")
	flags.String("certs-from", "DE,AT", "comma separated trust list sources to download; entries from a later source overwrite earlier ones")
	flags.Bool("no-verify", false, "skip certificate verification")
	flags.Bool("list-certs", false, "list certificates from the trust list")
}

func runVerify(args []string) error {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	var store *trustlist.Store
	if !viper.GetBool("no-verify") {
		var err error
		store, err = buildStore(logger)
		if err != nil {
			return err
		}

		if viper.GetBool("list-certs") {
			printCertList(store)
			return nil
		}
	}

	failures := 0
	for _, code := range args {
		err := processCredential([]byte(code), store, logger)
		if err != nil {
			logger.Error("Could not process credential", zap.Error(err))
			failures++
		}
	}

	if failures > 0 {
		return errors.Errorf("%d of %d credentials could not be processed", failures, len(args))
	}

	return nil
}

// buildStore loads the trust list from the configured file, or downloads the
// configured sources.
func buildStore(logger *zap.Logger) (*trustlist.Store, error) {
	certsFile := viper.GetString("certs-file")
	if certsFile != "" {
		listCbor, err := os.ReadFile(certsFile)
		if err != nil {
			msg := fmt.Sprintf("Could not read trust list file %s", certsFile)
			return nil, errors.WrapPrefix(err, msg, 0)
		}

		return trustlist.LoadCBOR(listCbor)
	}

	sources := strings.Split(viper.GetString("certs-from"), ",")
	return trustlist.NewDownloader(logger).Download(context.Background(), sources)
}

// processCredential decodes one credential, prints its claims, verifies it
// when a trust store is present, and prints the health claims document.
// Claim decoding and printing happen regardless of verification outcome.
func processCredential(code []byte, store *trustlist.Store, logger *zap.Logger) error {
	now := time.Now()

	proofCbor, err := common.DecodeQR(code)
	if err != nil {
		return err
	}

	cwt, err := common.UnmarshalCWT(proofCbor)
	if err != nil {
		return err
	}

	claims, err := common.ReadClaims(cwt.Payload, now)
	if err != nil {
		return err
	}

	printClaims(claims, logger)

	// A verification failure is a per-credential diagnostic; claim decoding
	// and payload printing still proceed.
	if store != nil {
		err = verifyCredential(cwt, store, now)
		if err != nil {
			fmt.Printf("%-15s: %s\n", "Verify Error", err.Error())
		}
	}

	if claims.HealthClaims != nil {
		docJson, err := common.MarshalClaimsJSON(claims.HealthClaims)
		if err != nil {
			return err
		}

		fmt.Printf("%-15s:\n%s\n", "Payload", docJson)
	}

	fmt.Println()
	return nil
}

func verifyCredential(cwt *common.CWT, store *trustlist.Store, now time.Time) error {
	kid, err := cwt.KID()
	if err != nil {
		return err
	}

	fmt.Printf("%-15s: %x / %s\n", "Key ID", kid, base64.StdEncoding.EncodeToString(kid))

	result, err := verifier.New(store).Verify(cwt, now)
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

func printClaims(claims *common.DecodedClaims, logger *zap.Logger) {
	for _, claim := range claims.Claims {
		if claim.Code == common.CLAIM_HEALTH_CLAIMS {
			continue
		}

		if !claim.Known {
			logger.Warn("Credential contains unknown claim code", zap.Int64("code", claim.Code))
		}

		fmt.Printf("%-15s: %v\n", claim.Name, claim.Value)
	}

	if claims.HasExpiry {
		fmt.Printf("%-15s: %t\n", "Is Expired", claims.Expired)
	}
}

func printResult(result *verifier.Result) {
	cert := result.Entry.Certificate

	fmt.Printf("%-15s: %s\n", "Key Type", result.PublicKey.KeyType())
	if ec, ok := result.PublicKey.(*verifier.ECPublicKey); ok {
		fmt.Printf("%-15s: %s\n", "Curve", ec.CurveName)
	}

	fmt.Printf("%-15s: %s\n", "Cert Serial", cert.SerialNumber)
	fmt.Printf("%-15s: %s\n", "Cert Issuer", cert.Issuer)
	fmt.Printf("%-15s: %s\n", "Cert Subject", cert.Subject)
	fmt.Printf("%-15s: %s - %s\n", "Cert Valid In",
		cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))
	fmt.Printf("%-15s: %t\n", "Cert Expired", result.CertificateExpired)
	fmt.Printf("%-15s: %s\n", "Signature Algo.", result.SignatureAlgorithm)
	fmt.Printf("%-15s: %t\n", "Signature Valid", result.SignatureValid)
}

func printCertList(store *trustlist.Store) {
	for _, entry := range store.Entries() {
		cert := entry.Certificate

		fmt.Printf("%-16s: %s\n", "Key ID", entry.KIDHex())
		fmt.Printf("%-16s: %s\n", "Serial", cert.SerialNumber)
		fmt.Printf("%-16s: %s\n", "Issuer", cert.Issuer)
		fmt.Printf("%-16s: %s\n", "Subject", cert.Subject)
		fmt.Printf("%-16s: %s - %s\n", "Valid Date Range",
			cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))

		pk, err := verifier.ExtractPublicKey(cert)
		if err == nil {
			fmt.Printf("%-16s: %s\n", "Key Type", pk.KeyType())
			if ec, ok := pk.(*verifier.ECPublicKey); ok {
				fmt.Printf("%-16s: %s\n", "Curve", ec.CurveName)
			}
		}

		fmt.Printf("%-16s: %s\n", "Signature Algo.", cert.SignatureAlgorithm)
		fmt.Println()
	}
}
