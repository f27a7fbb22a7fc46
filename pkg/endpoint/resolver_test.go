package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regionParams struct {
	Region string
}

type otherParams struct{}

func regionResolver() ParamsResolverFunc[regionParams] {
	return func(_ context.Context, p regionParams) (Endpoint, error) {
		if p.Region == "" {
			return Endpoint{}, errors.New("region is required")
		}
		return NewBuilder().URL("https://svc." + p.Region + ".example.com").Build(), nil
	}
}

func TestStaticResolver_IgnoresParams(t *testing.T) {
	r, err := NewStaticResolver("https://fixed.example.com:8443/base")
	require.NoError(t, err)

	inputs := []Params{{}, NewParams(StaticParams{}), NewParams(regionParams{Region: "x"}), NewParams(42)}
	for _, in := range inputs {
		ep, err := r.ResolveEndpoint(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "https://fixed.example.com:8443/base", ep.URL())
	}
}

func TestStaticResolver_Constructors(t *testing.T) {
	ep, err := HTTPLocalhost(8080).ResolveEndpoint(context.Background(), Params{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", ep.URL())

	_, err = NewStaticResolver("localhost:8080/no-scheme")
	assert.True(t, errors.Is(err, ErrMalformedURI))

	_, err = NewStaticResolver("http://[::1")
	assert.True(t, errors.Is(err, ErrMalformedURI))

	_, err = NewStaticResolver("https://:443")
	assert.True(t, errors.Is(err, ErrMalformedURI))
}

func TestDelegating_ForwardsTypedParams(t *testing.T) {
	r := NewDelegating[regionParams](regionResolver())

	ep, err := r.ResolveEndpoint(context.Background(), NewParams(regionParams{Region: "eu-west-1"}))
	require.NoError(t, err)
	assert.Equal(t, "https://svc.eu-west-1.example.com", ep.URL())
}

func TestDelegating_MissingParams(t *testing.T) {
	r := NewDelegating[regionParams](regionResolver())

	for _, in := range []Params{{}, NewParams(otherParams{}), NewParams(&regionParams{Region: "x"}), NewParams("eu-west-1")} {
		t.Run(in.TypeName(), func(t *testing.T) {
			_, err := r.ResolveEndpoint(context.Background(), in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingParams))
			assert.Contains(t, err.Error(), "params of expected type was not present")
		})
	}
}

func TestDelegating_InnerErrorUnchanged(t *testing.T) {
	r := NewDelegating[regionParams](regionResolver())

	_, err := r.ResolveEndpoint(context.Background(), NewParams(regionParams{}))
	require.EqualError(t, err, "region is required")
	assert.Equal(t, KindUnknown, KindOf(err))
}

func TestResolversAreSafeForConcurrentUse(t *testing.T) {
	r := NewDelegating[regionParams](regionResolver())

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			region := fmt.Sprintf("r%d", i)
			ep, err := r.ResolveEndpoint(context.Background(), NewParams(regionParams{Region: region}))
			if err != nil {
				errs <- err
				return
			}
			if want := "https://svc." + region + ".example.com"; ep.URL() != want {
				errs <- fmt.Errorf("got %s want %s", ep.URL(), want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestParamsAs(t *testing.T) {
	p := NewParams(regionParams{Region: "x"})
	v, ok := ParamsAs[regionParams](p)
	require.True(t, ok)
	assert.Equal(t, "x", v.Region)

	_, ok = ParamsAs[otherParams](p)
	assert.False(t, ok)

	assert.True(t, Params{}.IsEmpty())
	assert.Equal(t, "<none>", Params{}.TypeName())
	assert.Equal(t, "endpoint.regionParams", p.TypeName())
}

func TestEndpointBuilderCopies(t *testing.T) {
	b := NewBuilder().URL(" https://a.example.com ").Header("X-A", "1").Property("auth", "sigv4")
	first := b.Build()
	b.Header("X-A", "2")
	second := b.Build()

	assert.Equal(t, "https://a.example.com", first.URL())
	assert.Equal(t, []string{"1"}, first.HeaderValues("X-A"))
	assert.Equal(t, []string{"1", "2"}, second.HeaderValues("X-A"))
	assert.Equal(t, "sigv4", first.Property("auth"))
	assert.Nil(t, first.Property("missing"))
	assert.Equal(t, []string{"X-A"}, first.HeaderNames())
	assert.Equal(t, "1", first.Headers().Get("X-A"))
	assert.False(t, first.IsZero())
	assert.True(t, Endpoint{}.IsZero())
}
