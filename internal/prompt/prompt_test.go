package prompt

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskExistingSkip(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("s\n"), &out, false, false)

	d, err := p.AskExisting("bastion instance", true, nil)
	require.NoError(t, err)
	assert.Equal(t, Skip, d)
	assert.Contains(t, out.String(), "bastion instance already exists")
}

func TestAskExistingProceed(t *testing.T) {
	p := New(strings.NewReader("P\n"), io.Discard, false, false)

	d, err := p.AskExisting("security group", true, nil)
	require.NoError(t, err)
	assert.Equal(t, Proceed, d)
}

func TestAskExistingViewThenQuit(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("v\nq\n"), &out, false, false)

	viewed := false
	d, err := p.AskExisting("bastion instance", true, func(w io.Writer) {
		viewed = true
		fmt.Fprintln(w, "instance i-0abc state=running")
	})
	require.NoError(t, err)
	assert.Equal(t, Quit, d)
	assert.True(t, viewed)
	assert.Contains(t, out.String(), "i-0abc")
}

func TestAskExistingReprompsOnGarbage(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("x\np\n"), &out, false, false)

	d, err := p.AskExisting("IAM role", true, nil)
	require.NoError(t, err)
	assert.Equal(t, Proceed, d)
	assert.Contains(t, out.String(), "please answer")
}

func TestAskExistingNonInteractiveAutoSkip(t *testing.T) {
	p := New(strings.NewReader(""), io.Discard, true, true)

	d, err := p.AskExisting("bastion instance", true, nil)
	require.NoError(t, err)
	assert.Equal(t, Skip, d)
}

func TestAskExistingNonInteractiveUnhealthyProceeds(t *testing.T) {
	p := New(strings.NewReader(""), io.Discard, true, true)

	d, err := p.AskExisting("bastion instance", false, nil)
	require.NoError(t, err)
	assert.Equal(t, Proceed, d)
}

func TestConfirmDestructiveNeedsDoubleYes(t *testing.T) {
	p := New(strings.NewReader("yes\nyes\n"), io.Discard, false, false)
	ok, err := p.ConfirmDestructive("regenerate litellm/master-key")
	require.NoError(t, err)
	assert.True(t, ok)

	p = New(strings.NewReader("yes\nno\n"), io.Discard, false, false)
	ok, err = p.ConfirmDestructive("regenerate litellm/master-key")
	require.NoError(t, err)
	assert.False(t, ok)

	p = New(strings.NewReader("no\n"), io.Discard, false, false)
	ok, err = p.ConfirmDestructive("regenerate litellm/master-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirmDestructiveNonInteractiveRefuses(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("yes\nyes\n"), &out, true, false)

	ok, err := p.ConfirmDestructive("terminate bastion")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "refusing destructive action")
}

func TestAskExistingInputClosed(t *testing.T) {
	p := New(strings.NewReader(""), io.Discard, false, false)
	_, err := p.AskExisting("bastion instance", true, nil)
	require.Error(t, err)
}
