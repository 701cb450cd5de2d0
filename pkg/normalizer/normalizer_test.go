package normalizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quka-ai/kbcore/pkg/normalizer"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"lower and trim", "  Hello   World \n", "hello world"},
		{"nfkc", "ｆｕｌｌ width ﬁle", "full width file"},
		{"abbreviation", "See the FAQ for more Info.", "see the frequently asked questions for more information."},
		{"abbreviation not inside word", "information infos", "information infos"},
		{"adjacent abbreviations", "faq info", "frequently asked questions information"},
		{"slash abbreviation", "Coffee w/o sugar, tea w/ milk", "coffee without sugar, tea with milk"},
		{"repeated punctuation", "Really?!!! Yes... ok,,", "really?! yes. ok,"},
		{"mixed punctuation kept", "a-b.c", "a-b.c"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, normalizer.Normalize(c.in))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	in := "The Dept. of Govt   Mgmt!!  approx 3 hrs"
	once := normalizer.Normalize(in)
	assert.Equal(t, once, normalizer.Normalize(once))
	assert.Equal(t, "the department. of government management! approximately 3 hours", once)
}
