package directive_test

import (
	"testing"

	"github.com/aretw0/switchboard/pkg/directive"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSwitchArgs(t *testing.T) {
	t.Run("kernel with multi-value flags", func(t *testing.T) {
		args, err := directive.ParseSwitchArgs("use", "R -i x y -o z")
		require.NoError(t, err)
		assert.Equal(t, directive.SwitchArgs{Kernel: "R", In: []string{"x", "y"}, Out: []string{"z"}}, args)
	})

	t.Run("long flags and no kernel", func(t *testing.T) {
		args, err := directive.ParseSwitchArgs("with", "--out a b")
		require.NoError(t, err)
		assert.Empty(t, args.Kernel)
		assert.Equal(t, []string{"a", "b"}, args.Out)
		assert.Nil(t, args.In)
	})

	t.Run("flag without values", func(t *testing.T) {
		args, err := directive.ParseSwitchArgs("with", "python3 -i -o r")
		require.NoError(t, err)
		assert.Equal(t, "python3", args.Kernel)
		assert.Nil(t, args.In)
		assert.Equal(t, []string{"r"}, args.Out)
	})

	t.Run("too many positionals", func(t *testing.T) {
		_, err := directive.ParseSwitchArgs("use", "R python3")
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := directive.ParseSwitchArgs("use", "R --bogus")
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("help", func(t *testing.T) {
		_, err := directive.ParseSwitchArgs("use", "-h")
		var help *directive.HelpError
		require.ErrorAs(t, err, &help)
		assert.Equal(t, "use", help.Directive)
		assert.Contains(t, help.Usage, "--in")
	})
}

func TestParseDictArgs(t *testing.T) {
	args, err := directive.ParseDictArgs("a -d b c -k")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, args.Vars)
	assert.Equal(t, []string{"b", "c"}, args.Delete)
	assert.True(t, args.Keys)
	assert.False(t, args.Reset)

	args, err = directive.ParseDictArgs("--reset --all")
	require.NoError(t, err)
	assert.True(t, args.Reset)
	assert.True(t, args.All)
	assert.Empty(t, args.Vars)
}

func TestParseSoftWithArgs(t *testing.T) {
	args, err := directive.ParseSoftWithArgs("--list-kernel --default-kernel R --cell-kernel python3 --cell 4")
	require.NoError(t, err)
	assert.True(t, args.ListKernel)
	assert.Equal(t, "R", args.DefaultKernel)
	assert.Equal(t, "python3", args.CellKernel)
	assert.Equal(t, "4", args.Cell)

	args, err = directive.ParseSoftWithArgs("")
	require.NoError(t, err)
	assert.Equal(t, domain.HostEngine, args.DefaultKernel)

	_, err = directive.ParseSoftWithArgs("stray")
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestParseSandboxArgs(t *testing.T) {
	args, err := directive.ParseSandboxArgs("-d 'my dir' -k -e")
	require.NoError(t, err)
	assert.Equal(t, directive.SandboxArgs{Dir: "my dir", KeepDict: true, ExpectError: true}, args)

	_, err = directive.ParseSandboxArgs("-d")
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestParsePreviewArgs(t *testing.T) {
	args, err := directive.ParsePreviewArgs(`"a b.txt" result --off`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a b.txt", "result"}, args.Items)
	assert.True(t, args.Off)
}

func TestTokenize_UnclosedQuote(t *testing.T) {
	_, err := directive.Tokenize("'abc")
	assert.ErrorIs(t, err, domain.ErrParse)
}
