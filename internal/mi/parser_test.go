package mi

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultRecords(t *testing.T) {
	tests := []struct {
		line string
		want Record
	}{
		{
			line: "12^done",
			want: &ResultRecord{Token: 12, HasToken: true, Class: ClassDone},
		},
		{
			line: "3^running\r\n",
			want: &ResultRecord{Token: 3, HasToken: true, Class: ClassRunning},
		},
		{
			line: `7^error,msg="No symbol \"foo\" in current context.",code="undefined-command"`,
			want: &ResultRecord{Token: 7, HasToken: true, Class: ClassError, Results: Tuple{
				{Name: "msg", Value: Const(`No symbol "foo" in current context.`)},
				{Name: "code", Value: Const("undefined-command")},
			}},
		},
		{
			line: "^exit",
			want: &ResultRecord{Class: ClassExit},
		},
		{
			line: `2^done,bkpt={number="1",type="breakpoint",thread-groups=["i1"],times="0"}`,
			want: &ResultRecord{Token: 2, HasToken: true, Class: ClassDone, Results: Tuple{
				{Name: "bkpt", Value: Tuple{
					{Name: "number", Value: Const("1")},
					{Name: "type", Value: Const("breakpoint")},
					{Name: "thread-groups", Value: &List{Values: []Value{Const("i1")}}},
					{Name: "times", Value: Const("0")},
				}},
			}},
		},
		{
			line: `5^done,stack=[frame={level="0",func="main"},frame={level="1",func="_start"}]`,
			want: &ResultRecord{Token: 5, HasToken: true, Class: ClassDone, Results: Tuple{
				{Name: "stack", Value: &List{Results: []Result{
					{Name: "frame", Value: Tuple{{Name: "level", Value: Const("0")}, {Name: "func", Value: Const("main")}}},
					{Name: "frame", Value: Tuple{{Name: "level", Value: Const("1")}, {Name: "func", Value: Const("_start")}}},
				}}},
			}},
		},
		{
			line: `9^done,threads=[],args={}`,
			want: &ResultRecord{Token: 9, HasToken: true, Class: ClassDone, Results: Tuple{
				{Name: "threads", Value: &List{}},
				{Name: "args", Value: Tuple{}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseLine(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestParseAsyncRecords(t *testing.T) {
	tests := []struct {
		line string
		want Record
	}{
		{
			line: `*stopped,reason="breakpoint-hit",bkptno="1",thread-id="1",stopped-threads="all"`,
			want: &AsyncRecord{Kind: AsyncExec, Class: "stopped", Results: Tuple{
				{Name: "reason", Value: Const("breakpoint-hit")},
				{Name: "bkptno", Value: Const("1")},
				{Name: "thread-id", Value: Const("1")},
				{Name: "stopped-threads", Value: Const("all")},
			}},
		},
		{
			line: `*running,thread-id="all"`,
			want: &AsyncRecord{Kind: AsyncExec, Class: "running", Results: Tuple{
				{Name: "thread-id", Value: Const("all")},
			}},
		},
		{
			line: `=thread-created,id="2",group-id="i1"`,
			want: &AsyncRecord{Kind: AsyncNotify, Class: "thread-created", Results: Tuple{
				{Name: "id", Value: Const("2")},
				{Name: "group-id", Value: Const("i1")},
			}},
		},
		{
			line: `+download,section=".text"`,
			want: &AsyncRecord{Kind: AsyncStatus, Class: "download", Results: Tuple{
				{Name: "section", Value: Const(".text")},
			}},
		},
		{
			line: `4*stopped`,
			want: &AsyncRecord{Token: 4, HasToken: true, Kind: AsyncExec, Class: "stopped"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseLine(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
			assert.True(t, IsOutOfBand(got))
		})
	}
}

func TestParseStreamRecords(t *testing.T) {
	tests := []struct {
		line string
		want *StreamRecord
	}{
		{`~"GNU gdb (GDB) 14.2\n"`, &StreamRecord{Kind: StreamConsole, Text: "GNU gdb (GDB) 14.2\n"}},
		{`@"hello from target"`, &StreamRecord{Kind: StreamTarget, Text: "hello from target"}},
		{`&"warning: \"x\" shadowed\n"`, &StreamRecord{Kind: StreamLog, Text: "warning: \"x\" shadowed\n"}},
		{`~"caf\303\251\t\\"`, &StreamRecord{Kind: StreamConsole, Text: "café\t\\"}},
	}

	for _, tt := range tests {
		got, err := ParseLine(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestParsePrompt(t *testing.T) {
	for _, line := range []string{"(gdb)", "(gdb) ", "(gdb) \n"} {
		got, err := ParseLine(line)
		require.NoError(t, err)
		assert.IsType(t, &PromptRecord{}, got)
		assert.False(t, IsOutOfBand(got))
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		line     string
		token    uint64
		hasToken bool
		result   bool
	}{
		{line: ""},
		{line: "hello world"},
		{line: `~"unterminated`},
		{line: "5^bogus", token: 5, hasToken: true, result: true},
		{line: `6^done,msg="x`, token: 6, hasToken: true, result: true},
		{line: `8^done,frame={level="0"`, token: 8, hasToken: true, result: true},
		{line: `*stopped,=x`},
		{line: `1*running,thread-id="all`, token: 1, hasToken: true},
		{line: `3=thread-created,id="2`, token: 3, hasToken: true},
		{line: "4", token: 4, hasToken: true},
		{line: `^done,list=["a",b]`, result: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))

			var pe *ProtocolError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.hasToken, pe.HasToken)
			assert.Equal(t, tt.token, pe.Token)
			assert.Equal(t, tt.result, pe.IsResult)
		})
	}
}

func TestTupleAccessors(t *testing.T) {
	rec, err := ParseLine(`1^done,threads=[{id="1",target-id="Thread 0x7f",frame={level="0",func="main",line="12"},state="stopped"},{id="2",state="running"}],current-thread-id="1"`)
	require.NoError(t, err)
	rr := rec.(*ResultRecord)

	assert.Equal(t, "1", rr.Results.String("current-thread-id"))
	assert.Equal(t, "", rr.Results.String("missing"))

	threads := rr.Results.List("threads")
	require.Equal(t, 2, threads.Len())
	tuples := threads.Tuples()
	require.Len(t, tuples, 2)
	assert.Equal(t, "running", tuples[1].String("state"))

	line, ok := tuples[0].Tuple("frame").Int("line")
	assert.True(t, ok)
	assert.Equal(t, 12, line)

	_, ok = tuples[0].Int("target-id")
	assert.False(t, ok)

	var nilList *List
	assert.Equal(t, 0, nilList.Len())
	assert.Nil(t, nilList.Strings())
}

func TestErrorRecordAccessors(t *testing.T) {
	rec, err := ParseLine(`4^error,msg="Undefined command: \"frob\".",code="undefined-command"`)
	require.NoError(t, err)
	rr := rec.(*ResultRecord)
	assert.Equal(t, `Undefined command: "frob".`, rr.ErrorMessage())
	assert.Equal(t, "undefined-command", rr.ErrorCode())
}
