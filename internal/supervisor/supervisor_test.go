package supervisor

import "testing"

func TestIsChildEntrypoint(t *testing.T) {
	cases := []struct {
		args []string
		want bool
	}{
		{nil, false},
		{[]string{}, false},
		{[]string{"/bin/echo"}, false},
		{[]string{childEntrypointArg, "/bin/echo"}, true},
	}

	for _, c := range cases {
		if got := IsChildEntrypoint(c.args); got != c.want {
			t.Errorf("IsChildEntrypoint(%v) = %v, want %v", c.args, got, c.want)
		}
	}
}
