package mi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandEscaping(t *testing.T) {
	cmd := Command{
		Operation:  "-test-operation",
		Options:    []string{`-a a_test\with slashes`, `-b "hello"`, "-c c_test"},
		Parameters: []string{"-param1 param", "param2", "-param3"},
	}

	want := `-test-operation "-a a_test\\with slashes" "-b \"hello\"" "-c c_test" -- "-param1 param" param2 -param3` + "\n"
	assert.Equal(t, want, cmd.String())
}

func TestBreakInsertPaths(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
	}{
		{"windows path", `c:\test\this\path:14`, "-break-insert -i 1 -p 4 c:\\test\\this\\path:14\n"},
		{"unix path", "/test/this/path:14", "-break-insert -i 1 -p 4 /test/this/path:14\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := BreakInsert(tt.location, BreakInsertOptions{IgnoreCount: 1, Thread: "4"})
			assert.Equal(t, tt.want, cmd.String())
		})
	}
}

func TestBreakInsertOptionOrder(t *testing.T) {
	cmd := BreakInsert("main.c:10", BreakInsertOptions{
		Pending:     true,
		Disabled:    true,
		Thread:      "2",
		IgnoreCount: 3,
		Condition:   "i > 5",
		Hardware:    true,
		Temporary:   true,
	})
	assert.Equal(t, `-break-insert -t -h -c "i > 5" -i 3 -p 2 -d -f main.c:10`+"\n", cmd.String())
}

func TestEncodePrefixesToken(t *testing.T) {
	assert.Equal(t, "17-exec-continue --all\n", string(ExecContinue(true).Encode(17)))
	assert.Equal(t, "1-exec-next\n", string(ExecNext().Encode(1)))
}

func TestCommandContext(t *testing.T) {
	cmd := StackListFrames(0, 9).WithContext(Context{Thread: "3", Frame: "0"})
	assert.Equal(t, "-stack-list-frames --thread 3 --frame 0 0 9\n", cmd.String())

	grouped := ExecContinue(false).WithContext(Context{ThreadGroup: "i1"})
	assert.Equal(t, "-exec-continue --thread-group i1\n", grouped.String())
}

func TestSeparatorWithoutOptions(t *testing.T) {
	assert.Equal(t, "-data-evaluate-expression -- -1\n", DataEvaluateExpression("-1").String())
	assert.Equal(t, "-data-evaluate-expression x\n", DataEvaluateExpression("x").String())
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"":                `""`,
		"plain":           "plain",
		`c:\dir\file.c`:   `c:\dir\file.c`,
		"two words":       `"two words"`,
		`say "hi"`:        `"say \"hi\""`,
		"tab\there":       "\"tab\there\"",
		"line\nbreak":     `"line\nbreak"`,
		`c:\my dir\x.c`:   `"c:\\my dir\\x.c"`,
		`trailing\`:       `trailing\`,
		`"`:               `"\""`,
	}
	for in, want := range tests {
		assert.Equal(t, want, Quote(in), "Quote(%q)", in)
	}
}

func TestWithOptionsDoesNotAlias(t *testing.T) {
	base := NewCommand("-op").WithOptions("-a")
	one := base.WithOptions("-b")
	two := base.WithOptions("-c")

	assert.Equal(t, []string{"-a"}, base.Options)
	assert.Equal(t, []string{"-a", "-b"}, one.Options)
	assert.Equal(t, []string{"-a", "-c"}, two.Options)
}
