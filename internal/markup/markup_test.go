package markup

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold with boundaries", "say *hi* there", "say <strong>hi</strong> there"},
		{"bold without closing boundary", "*hi*there", "*hi*there"},
		{"bold without opening boundary", "a*hi* there", "a*hi* there"},
		{"italic", "_soft_ words", "<em>soft</em> words"},
		{"italic inside identifier", "snake_case_name", "snake_case_name"},
		{"strikethrough", "~gone~", "<del>gone</del>"},
		{"monospace protects interior", "```x *y* _z_```", "<pre>x *y* _z_</pre>"},
		{"empty monospace", "``````", "``````"},
		{"unmatched fence", "```open", "```open"},
		{"empty bold", "**", "**"},
		{"unmatched delimiter", "2 * 3 = 6", "2 * 3 = 6"},
		{"bold wraps italic", "*x _y_ z*", "<strong>x <em>y</em> z</strong>"},
		{"bold does not enter italic", "_*a*_", "<em>*a*</em>"},
		{"adjacent spans", "*a* ~b~", "<strong>a</strong> <del>b</del>"},
		{"escaped delimiters", `\*not\* bold`, `\*not\* bold`},
		{"escaped delimiter blocks span", `*a\* b*`, `*a\* b*`},
		{"fence run", "````a```", "<pre>`a</pre>"},
		{"html escaped", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"html inside span", "*<b>*", "<strong>&lt;b&gt;</strong>"},
		{"newlines", "line1\nline2", "line1<br>line2"},
		{"span across lines", "*bold\nacross*", "<strong>bold<br>across</strong>"},
		{"unicode word boundary", "é*x*", "é*x*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.in); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// The escaped triple backtick is not an opener; the later unescaped fence has
// no partner, so nothing is formatted.
func TestEscapedFence(t *testing.T) {
	in := "\\```code```"
	if HasMarkup(in) {
		t.Errorf("HasMarkup(%q) = true, want false", in)
	}
	if got := Render(in); got != in {
		t.Errorf("Render(%q) = %q, want unchanged", in, got)
	}

	in = "```a\\```b```"
	want := "<pre>a\\```b</pre>"
	if got := Render(in); got != want {
		t.Errorf("Render(%q) = %q, want %q", in, got, want)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"say *hi* there", `say <strong>\*hi\*</strong> there`},
		{"```*x*```", "<pre>\\*x\\*</pre>"},
		{"a < b\nc", "a < b\nc"},
		{"_*a*_", `<em>\_\*a\*\_</em>`},
	}
	for _, tt := range tests {
		if got := Detect(tt.in); got != tt.want {
			t.Errorf("Detect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHasMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"plain text", false},
		{"say *hi* there", true},
		{"*hi*there", false},
		{"~x~", true},
		{"```x```", true},
		{"a_b_c", false},
		{"<b>not markup</b>", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HasMarkup(tt.in); got != tt.want {
			t.Errorf("HasMarkup(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	dialect, formatted, ok := Format("say *hi*")
	if !ok || dialect != Dialect || formatted != "say <strong>hi</strong>" {
		t.Errorf("Format() = %q, %q, %v", dialect, formatted, ok)
	}
	if _, _, ok := Format("plain"); ok {
		t.Error("Format(plain) ok = true, want false")
	}
}

func TestPlainTextIdentity(t *testing.T) {
	inputs := []string{
		"hello world",
		"numbers 1234 and punctuation!?.,",
		"multi\nline\ntext",
		"ünïcödé 日本語",
		"a < b & c",
	}
	for _, in := range inputs {
		if got := Detect(in); got != in {
			t.Errorf("Detect(%q) = %q, want identity", in, got)
		}
		want := strings.ReplaceAll(htmlEscaper.Replace(in), "\n", "<br>")
		if got := Render(in); got != want {
			t.Errorf("Render(%q) = %q, want %q", in, got, want)
		}
	}
}

// Every string up to six runes over the delimiter alphabet: the detection
// output must itself be free of markup.
func TestDetectIsStable(t *testing.T) {
	alphabet := []rune{'*', '_', '~', '`', 'a', ' ', '\\'}
	var walk func(prefix []rune, depth int)
	walk = func(prefix []rune, depth int) {
		s := string(prefix)
		if out := Detect(s); HasMarkup(out) {
			t.Fatalf("HasMarkup(Detect(%q)) = true; Detect = %q, again = %q", s, out, Detect(out))
		}
		if depth == 0 {
			return
		}
		for _, r := range alphabet {
			walk(append(prefix, r), depth-1)
		}
	}
	walk(make([]rune, 0, 6), 6)

	extra := []string{
		"_a _b_ c_",
		"_a *x_y* b_",
		"*x _y_ z*",
		"``````a```",
		"```a``````",
		"````````a``````",
		"```x``` ```` *y* ``` _z_",
		"*a**b*",
		"~a~*b*",
		"* a * b *",
		"*bold\nacross* and _it\nalic_",
	}
	for _, s := range extra {
		if out := Detect(s); HasMarkup(out) {
			t.Errorf("HasMarkup(Detect(%q)) = true; Detect = %q", s, out)
		}
	}
}
