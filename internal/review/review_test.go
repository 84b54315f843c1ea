package review

import (
	"strings"
	"testing"
)

func TestApprovesPrintingCode(t *testing.T) {
	res := Review(`total := df.Sum("sales")
fmt.Println(total)`)
	if !res.Approved {
		t.Fatalf("rejected: %v", res.Reasons)
	}
	if len(res.Reasons) != 0 {
		t.Errorf("approved code should carry no reasons, got %v", res.Reasons)
	}
}

func TestApprovesFigureAssignment(t *testing.T) {
	for _, code := range []string{
		`fig = viz.NewFigure(viz.KindBar, "t")`,
		`fig := viz.NewFigure(viz.KindBar, "t")`,
		`plot.Bar("t", labels, values)`,
	} {
		if res := Review(code); !res.Approved {
			t.Errorf("rejected %q: %v", code, res.Reasons)
		}
	}
}

func TestRejectsForbiddenTerms(t *testing.T) {
	cases := []struct {
		code string
		term string
	}{
		{`exec.Command("ls")` + "\nfmt.Println(1)", "exec.Command"},
		{`import "os/exec"` + "\nfmt.Println(1)", "os/exec"},
		{`syscall.Kill(1, 9)` + "\nfmt.Println(1)", "syscall."},
		{`os.Exit(1)` + "\nfmt.Println(1)", "os.Exit"},
		{`os.RemoveAll("/")` + "\nfmt.Println(1)", "os.RemoveAll"},
		{`cmd := "rm -rf /"` + "\nfmt.Println(cmd)", "rm -rf"},
	}
	for _, c := range cases {
		res := Review(c.code)
		if res.Approved {
			t.Errorf("approved code containing %q", c.term)
			continue
		}
		found := false
		for _, r := range res.Reasons {
			if strings.Contains(r, c.term) {
				found = true
			}
		}
		if !found {
			t.Errorf("reasons %v do not name %q", res.Reasons, c.term)
		}
	}
}

func TestRejectsSilentCode(t *testing.T) {
	res := Review(`total := df.Sum("sales")
_ = total`)
	if res.Approved {
		t.Fatal("silent code should be rejected")
	}
	if len(res.Reasons) != 1 || !strings.Contains(res.Reasons[0], "logic error") {
		t.Errorf("reasons = %v", res.Reasons)
	}
}

func TestCollectsAllReasons(t *testing.T) {
	res := Review(`exec.Command("ls"); os.Exit(1)`)
	if res.Approved {
		t.Fatal("should be rejected")
	}
	// two forbidden terms plus the missing-output check
	if len(res.Reasons) != 3 {
		t.Errorf("want 3 reasons, got %v", res.Reasons)
	}
}
