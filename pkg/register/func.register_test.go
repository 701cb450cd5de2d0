package register_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quka-ai/kbcore/pkg/register"
)

type testKey struct{}

func TestResolveFiltersByType(t *testing.T) {
	var got []string
	register.RegisterFunc(testKey{}, func(s string) { got = append(got, "first:"+s) })
	register.RegisterFunc(testKey{}, func(i int) { got = append(got, "int") })
	register.RegisterFunc(testKey{}, func(s string) { got = append(got, "second:"+s) })

	for _, h := range register.ResolveFuncHandlers[string](testKey{}) {
		h("x")
	}
	assert.Equal(t, []string{"first:x", "second:x"}, got)
}
