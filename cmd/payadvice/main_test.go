package main

import "testing"

func TestListCommandsKeepTheirOwnLimits(t *testing.T) {
	root := newRootCmd()
	for name, want := range map[string]string{"runs:list": "20", "attachments:list": "50"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatal(err)
		}
		if err := cmd.ParseFlags(nil); err != nil {
			t.Fatal(err)
		}
		flag := cmd.Flags().Lookup("limit")
		if flag == nil || flag.DefValue != want || flag.Value.String() != want {
			t.Fatalf("%s limit=%v want %s", name, flag, want)
		}
	}
}

func TestHarvestAndProcessShareFlagNames(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"mail:harvest", "advice:process"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatal(err)
		}
		for _, f := range []string{"days", "max"} {
			if cmd.Flags().Lookup(f) == nil {
				t.Fatalf("%s missing --%s", name, f)
			}
		}
	}
}
