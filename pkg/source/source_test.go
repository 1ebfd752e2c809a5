//nolint:thelper // ok for tests
package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/testsupport/basedata"
)

func fixed(data []byte, err error, calls *int) Fetcher {
	return FetcherFunc(func(context.Context, model.SessionKey, LoadOptions) ([]byte, error) {
		*calls++
		return data, err
	})
}

func TestChain(t *testing.T) {
	key := basedata.SampleKey()
	errBroken := errors.New("broken")
	var c1, c2, c3 int

	data, err := Chain(
		fixed(nil, ErrSessionNotFound, &c1),
		fixed([]byte("doc"), nil, &c2),
		fixed([]byte("other"), nil, &c3),
	).Fetch(context.Background(), key, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), data)
	assert.Equal(t, []int{1, 1, 0}, []int{c1, c2, c3})

	_, err = Chain(
		fixed(nil, errBroken, &c1),
		fixed([]byte("doc"), nil, &c2),
	).Fetch(context.Background(), key, LoadOptions{})
	assert.ErrorIs(t, err, errBroken, "other errors stop the chain")
	assert.Equal(t, 1, c2)

	_, err = Chain(fixed(nil, ErrSessionNotFound, &c1)).
		Fetch(context.Background(), key, LoadOptions{})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = Chain().Fetch(context.Background(), key, LoadOptions{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
