package settings

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Checksum vectors from EIP-55.
func TestChecksumAddress(t *testing.T) {
	got, err := ChecksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", got)

	got, err = ChecksumAddress("0xFB6916095CA1DF60BB79CE92CE3EA74C37C5D359")
	require.NoError(t, err)
	assert.Equal(t, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", got)

	_, err = ChecksumAddress("not-an-address")
	assert.Error(t, err)

	_, err = ChecksumAddress("0x1234")
	assert.Error(t, err)
}

func TestParseRecipient(t *testing.T) {
	// all-lowercase carries no checksum claim
	addr, err := ParseRecipient("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", addr.Hex())

	// correct mixed-case checksum
	_, err = ParseRecipient("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)

	// wrong mixed-case checksum must be rejected
	_, err = ParseRecipient("0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	assert.True(t, errors.Is(err, ErrInvalidRecipient))

	_, err = ParseRecipient("0xzzz")
	assert.True(t, errors.Is(err, ErrInvalidRecipient))
}

func TestWithRecipient(t *testing.T) {
	opts := Default()
	assert.Equal(t, DefaultSlippagePct, opts.SlippagePct)
	assert.Equal(t, DefaultTTL, opts.TTL)

	withAddr, err := opts.WithRecipient("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	require.NotNil(t, withAddr.Recipient)

	cleared, err := withAddr.WithRecipient("  ")
	require.NoError(t, err)
	assert.Nil(t, cleared.Recipient)

	_, err = opts.WithRecipient("0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	assert.Error(t, err)
}
