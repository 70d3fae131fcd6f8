package main

import "testing"

func TestApplyProgramNameDefaults(t *testing.T) {
	for _, tc := range []struct {
		prog           string
		wantDecompress bool
		wantStdout     bool
	}{
		{"zmt", false, false},
		{"unzmt-mt", true, false},
		{"zmtcat-mt", true, true},
	} {
		cfg := &config{}
		applyProgramNameDefaults(tc.prog, cfg)
		if cfg.decompress != tc.wantDecompress {
			t.Errorf("%s: decompress = %v, want %v", tc.prog, cfg.decompress, tc.wantDecompress)
		}
		if cfg.stdout != tc.wantStdout {
			t.Errorf("%s: stdout = %v, want %v", tc.prog, cfg.stdout, tc.wantStdout)
		}
	}
}

func TestModeFor(t *testing.T) {
	if got := modeFor(&config{}); got != modeCompress {
		t.Errorf("default mode = %v, want modeCompress", got)
	}
	if got := modeFor(&config{decompress: true}); got != modeDecompress {
		t.Errorf("decompress mode = %v, want modeDecompress", got)
	}
	if got := modeFor(&config{decompress: true, compress: true}); got != modeCompress {
		t.Errorf("-d -z together = %v, want modeCompress (explicit -z wins)", got)
	}
}

func TestDerivedOutputName(t *testing.T) {
	for _, tc := range []struct {
		name, suffix string
		mode         mode
		want         string
	}{
		{"data", ".zmt", modeCompress, "data.zmt"},
		{"data.zmt", ".zmt", modeDecompress, "data"},
		{"data.bin", ".zmt", modeDecompress, "data.bin.out"},
	} {
		if got := derivedOutputName(tc.name, tc.suffix, tc.mode); got != tc.want {
			t.Errorf("derivedOutputName(%q,%q,%v) = %q, want %q", tc.name, tc.suffix, tc.mode, got, tc.want)
		}
	}
}

func TestMaxInt(t *testing.T) {
	if maxInt(1, 2) != 2 {
		t.Error("maxInt(1,2) != 2")
	}
	if maxInt(3, 2) != 3 {
		t.Error("maxInt(3,2) != 3")
	}
}
