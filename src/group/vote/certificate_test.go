package vote

import (
	"errors"
	"testing"

	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateVerify(t *testing.T) {
	for _, s := range []identity.Scheme{identity.NewSecp256k1(), identity.NewSchnorr()} {
		t.Run(s.Name(), func(t *testing.T) {
			ca, subject := newMember(t, s), newMember(t, s)

			cert, err := Issue(s, ca.sk, ca.pk, subject.pk)
			require.NoError(t, err)
			assert.True(t, cert.Verify(s))

			self, err := SelfCertificate(s, subject.sk, subject.pk)
			require.NoError(t, err)
			assert.True(t, self.Verify(s))
			assert.Equal(t, subject.pk, self.CA)

			mutated := NewCertificate(cert.PubKey, cert.CA, append(identity.Signature{}, cert.Proof...))
			mutated.Proof[0] ^= 0x80
			assert.False(t, mutated.Verify(s))

			var nilCert *Certificate
			assert.False(t, nilCert.Verify(s))
		})
	}
}

func TestCertificateBinary(t *testing.T) {
	s := identity.NewSecp256k1()
	ca, subject := newMember(t, s), newMember(t, s)

	cert, err := Issue(s, ca.sk, ca.pk, subject.pk)
	require.NoError(t, err)

	data, err := cert.Marshal()
	require.NoError(t, err)
	assert.Equal(t, byte(0x93), data[0])

	back, err := UnmarshalCertificate(data)
	require.NoError(t, err)
	assert.Equal(t, cert.PubKey, back.PubKey)
	assert.Equal(t, cert.CA, back.CA)
	assert.Equal(t, cert.Proof, back.Proof)
	assert.True(t, back.Verify(s))

	_, err = UnmarshalCertificate(data[:len(data)-1])
	assert.True(t, errors.Is(err, ErrMalformedCertificate))

	_, err = UnmarshalCertificate(append(append([]byte{}, data...), 0x01))
	assert.True(t, errors.Is(err, ErrMalformedCertificate))

	empty, err := NewCertificate(subject.pk, ca.pk, nil).Marshal()
	require.NoError(t, err)
	_, err = UnmarshalCertificate(empty)
	assert.Error(t, err)
}

func TestCertificateJSON(t *testing.T) {
	s := identity.NewSchnorr()
	ca, subject := newMember(t, s), newMember(t, s)

	cert, err := Issue(s, ca.sk, ca.pk, subject.pk)
	require.NoError(t, err)

	js, err := cert.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, js, `"pk":"0X`)
	assert.Contains(t, js, `"pkc":"0X`)

	back, err := CertificateFromJSON(js)
	require.NoError(t, err)
	assert.Equal(t, cert.PubKey, back.PubKey)
	assert.Equal(t, cert.CA, back.CA)
	assert.Equal(t, cert.Proof, back.Proof)
	assert.True(t, back.Verify(s))

	_, err = CertificateFromJSON(`{"pk":"0XZZ","ca":"0X01","pkc":"0X02"}`)
	assert.Error(t, err)

	_, err = CertificateFromJSON(`{"pk":"0X01"}`)
	assert.True(t, errors.Is(err, ErrMalformedCertificate))

	_, err = CertificateFromJSON(`not json`)
	assert.True(t, errors.Is(err, ErrMalformedCertificate))
}
