package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ckms/pkg/errors"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Operate on a tenant-scoped key alias",
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(getPublicKeyCmd, encryptCmd, decryptCmd, signCmd, verifyCmd)

	for _, cmd := range []*cobra.Command{getPublicKeyCmd, encryptCmd, decryptCmd, signCmd, verifyCmd} {
		cmd.Flags().String("app", "", "application ID (required)")
		cmd.Flags().String("ref", "", "reference ID (optional; empty addresses the application's default key)")
		_ = cmd.MarkFlagRequired("app")
	}
	encryptCmd.Flags().String("data", "", "base64-encoded payload")
	signCmd.Flags().String("data", "", "base64-encoded payload")
	verifyCmd.Flags().String("data", "", "base64-encoded payload")
	verifyCmd.Flags().String("signature", "", "base64-encoded signature")
	decryptCmd.Flags().String("encrypted-key", "", "base64-encoded RSA-OAEP-wrapped symmetric key")
}

var getPublicKeyCmd = &cobra.Command{
	Use:   "get-public-key",
	Short: "Print the Base64 DER SubjectPublicKeyInfo for a scope's current key, minting one if absent",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ref := scopeFlags(cmd)
		der, issuedAt, expiresAt, err := facade.GetPublicKey(context.Background(), app, ref)
		if err != nil {
			return describeErr(err)
		}
		fmt.Println(der)
		fmt.Printf("issuedAt: %s\n", issuedAt.Format(time.RFC3339))
		fmt.Printf("expiresAt: %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Sign the SHA-256 digest of --data with the scope's current private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ref := scopeFlags(cmd)
		data, err := decodeFlag(cmd, "data")
		if err != nil {
			return err
		}
		sig, err := facade.Encrypt(context.Background(), app, ref, data)
		if err != nil {
			return describeErr(err)
		}
		fmt.Println(base64.StdEncoding.EncodeToString(sig))
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Unwrap --encrypted-key using the scope's current key (never mints)",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ref := scopeFlags(cmd)
		encKey, err := decodeFlag(cmd, "encrypted-key")
		if err != nil {
			return err
		}
		plaintext, err := facade.DecryptSymmetricKey(context.Background(), app, ref, encKey)
		if err != nil {
			return describeErr(err)
		}
		fmt.Println(base64.StdEncoding.EncodeToString(plaintext))
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign --data under the scope's certificate-bound current key, minting one if absent",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ref := scopeFlags(cmd)
		data, err := decodeFlag(cmd, "data")
		if err != nil {
			return err
		}
		sig, err := facade.Sign(context.Background(), app, ref, data)
		if err != nil {
			return describeErr(err)
		}
		fmt.Println(base64.StdEncoding.EncodeToString(sig))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify --signature over --data under the scope's certificate-bound current key",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ref := scopeFlags(cmd)
		data, err := decodeFlag(cmd, "data")
		if err != nil {
			return err
		}
		sig, err := decodeFlag(cmd, "signature")
		if err != nil {
			return err
		}
		ok, err := facade.Verify(context.Background(), app, ref, data, sig)
		if err != nil {
			return describeErr(err)
		}
		fmt.Println(ok)
		return nil
	},
}

func scopeFlags(cmd *cobra.Command) (applicationID, referenceID string) {
	app, _ := cmd.Flags().GetString("app")
	ref, _ := cmd.Flags().GetString("ref")
	return app, ref
}

func decodeFlag(cmd *cobra.Command, name string) ([]byte, error) {
	encoded, _ := cmd.Flags().GetString(name)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("--%s is not valid base64: %w", name, err)
	}
	return decoded, nil
}

func describeErr(err error) error {
	if cbcErr, ok := errors.AsCBCError(err); ok {
		return fmt.Errorf("%s: %s", cbcErr.Code(), cbcErr.Description())
	}
	return err
}
