package commands

import (
	"fmt"
	"io/ioutil"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/config"
	"github.com/mosaicnetworks/turnstile/src/crypto/keys"
	"github.com/mosaicnetworks/turnstile/src/group/ca"
	"github.com/mosaicnetworks/turnstile/src/group/vote"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/spf13/cobra"
)

var (
	certifyPolicy  string
	certifyScheme  string
	issuerKeyFile  string
	subjectPubKey  string
	certifyOutFile string
)

// NewCertifyCmd produces a CertifyCmd which signs the public key of a peer
// with the issuer's secret key. With the ca policy the output is the hex proof
// expected by --proof. With the vote policy it is a JSON certificate expected
// by --certificate.
func NewCertifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certify",
		Short: "Issue a proof or a certificate for a public key",
		RunE:  certify,
	}

	AddCertifyFlags(cmd)

	return cmd
}

// AddCertifyFlags adds flags to the certify command
func AddCertifyFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&certifyPolicy, "policy", config.PolicyCA, "Policy the credential is for: ca or vote")
	cmd.Flags().StringVar(&certifyScheme, "scheme", _config.Turnstile.Scheme, "Signature scheme: secp256k1 or schnorr")
	cmd.Flags().StringVar(&issuerKeyFile, "key", defaultPrivateKeyFile, "Private key file of the issuer")
	cmd.Flags().StringVar(&subjectPubKey, "subject", "", "Hex public key to certify; the issuer's own key if empty (vote policy)")
	cmd.Flags().StringVar(&certifyOutFile, "out", "", "Write the credential to this file instead of stdout")
}

func certify(cmd *cobra.Command, args []string) error {
	scheme, err := identity.FromName(certifyScheme)
	if err != nil {
		return err
	}

	raw, err := keys.NewSimpleKeyfile(issuerKeyFile).ReadRaw()
	if err != nil {
		return fmt.Errorf("Reading issuer key: %s", err)
	}
	issuerSK := identity.SecretKey(raw)

	issuerPK, err := scheme.PublicKey(issuerSK)
	if err != nil {
		return err
	}

	subject := issuerPK
	if subjectPubKey != "" {
		subject, err = common.DecodeFromString(subjectPubKey)
		if err != nil {
			return fmt.Errorf("subject: %s", err)
		}
	}

	var credential string

	switch certifyPolicy {
	case config.PolicyCA:
		if subjectPubKey == "" {
			return fmt.Errorf("the ca policy requires a --subject")
		}
		proof, err := ca.SignProof(scheme, issuerSK, subject)
		if err != nil {
			return err
		}
		credential = common.EncodeToString(proof)
	case config.PolicyVote:
		cert, err := vote.Issue(scheme, issuerSK, issuerPK, subject)
		if err != nil {
			return err
		}
		credential, err = cert.ToJSON()
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown policy %q", certifyPolicy)
	}

	if certifyOutFile == "" {
		fmt.Fprintln(cmd.OutOrStdout(), credential)
		return nil
	}

	if err := ioutil.WriteFile(certifyOutFile, []byte(credential), 0600); err != nil {
		return fmt.Errorf("Writing credential: %s", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "The credential has been saved to: %s\n", certifyOutFile)

	return nil
}
