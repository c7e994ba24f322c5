package encoding_test

import (
	"reflect"
	"strings"
	"testing"

	"squish/internal/encoding"
)

func buildNormalized(t *testing.T, opts encoding.Options, input, output string) []string {
	t.Helper()
	normalized, c, err := encoding.Normalize(opts)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	return encoding.BuildArgs(c, normalized, input, output)
}

func indexOf(args []string, want string) int {
	for i, arg := range args {
		if arg == want {
			return i
		}
	}
	return -1
}

func containsSequence(args []string, seq ...string) bool {
	if len(seq) == 0 {
		return true
	}
	for i := 0; i+len(seq) <= len(args); i++ {
		match := true
		for j, want := range seq {
			if args[i+j] != want {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestBuildArgsCanonicalTranscode(t *testing.T) {
	args := buildNormalized(t, encoding.Options{
		Codec:   "libx264",
		Quality: 75,
		FPS:     30,
	}, "in.mov", "out.mp4")

	want := []string{
		"-y", "-nostdin", "-threads", "0", "-progress", "pipe:1",
		"-i", "in.mov",
		"-c:v", "libx264",
		"-c:a", "aac", "-b:a", "128k",
		"-sn",
		"-map_metadata", "-1",
		"-preset", "medium",
		"-r", "30",
		"-crf", "30",
		"-movflags", "+faststart",
		"out.mp4",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("unexpected argument vector:\n got %q\nwant %q", args, want)
	}
}

func TestBuildArgsQualityAnchor(t *testing.T) {
	args := buildNormalized(t, encoding.Options{Codec: "libx264", Quality: 50}, "in.mp4", "out.mp4")
	if !containsSequence(args, "-crf", "37") {
		t.Fatalf("expected -crf 37 for quality 50, got %q", args)
	}
	if indexOf(args, "-vf") != -1 {
		t.Fatalf("expected no scale filter at full scale, got %q", args)
	}
}

func TestBuildArgsWindowSeeksBeforeInput(t *testing.T) {
	args := buildNormalized(t, encoding.Options{
		Codec:  "libx264",
		Window: &encoding.Window{StartSeconds: 2.5, DurationSeconds: 3},
	}, "in.mp4", "out.mp4")

	ss := indexOf(args, "-ss")
	in := indexOf(args, "-i")
	dur := indexOf(args, "-t")
	if ss == -1 || in == -1 || dur == -1 {
		t.Fatalf("missing window flags in %q", args)
	}
	if !(ss < in && in < dur) {
		t.Fatalf("expected -ss before -i before -t, got %q", args)
	}
	if args[ss+1] != "2.5" || args[dur+1] != "3" {
		t.Fatalf("unexpected window values in %q", args)
	}
}

func TestBuildArgsAV1ExtrasAndNumericPreset(t *testing.T) {
	args := buildNormalized(t, encoding.Options{
		Codec:   "libsvtav1",
		Quality: 100,
		Preset:  "slow",
		Tune:    "film",
	}, "in.mp4", "out.mp4")

	if !containsSequence(args, "-c:v", "libsvtav1", "-svtav1-params", "tune=0:fast-decode=1") {
		t.Fatalf("expected AV1 extras immediately after encoder, got %q", args)
	}
	if !containsSequence(args, "-preset", "2") {
		t.Fatalf("expected numeric preset 2 for slow, got %q", args)
	}
	if !containsSequence(args, "-crf", "35") {
		t.Fatalf("expected -crf 35 at quality 100, got %q", args)
	}
	if indexOf(args, "-tune") != -1 {
		t.Fatalf("expected no tune flag for AV1, got %q", args)
	}

	args = buildNormalized(t, encoding.Options{Codec: "libsvtav1", Preset: "warp9"}, "in.mp4", "out.mp4")
	if !containsSequence(args, "-preset", "6") {
		t.Fatalf("expected unknown preset to translate mid-fast, got %q", args)
	}
}

func TestBuildArgsVP9(t *testing.T) {
	args := buildNormalized(t, encoding.Options{Codec: "libvpx-vp9", Quality: 0}, "in.mp4", "out.webm")

	if !containsSequence(args, "-c:v", "libvpx-vp9", "-b:v", "0", "-row-mt", "1") {
		t.Fatalf("expected VP9 extras after encoder, got %q", args)
	}
	if indexOf(args, "-preset") != -1 {
		t.Fatalf("expected no preset flag for VP9, got %q", args)
	}
	if !containsSequence(args, "-crf", "63") {
		t.Fatalf("expected -crf 63 at quality 0, got %q", args)
	}
	if indexOf(args, "-movflags") != -1 {
		t.Fatalf("expected no faststart outside mp4, got %q", args)
	}
}

func TestBuildArgsHardwareRateControl(t *testing.T) {
	args := buildNormalized(t, encoding.Options{Codec: "h264_videotoolbox", Quality: 62}, "in.mp4", "out.mp4")

	if !containsSequence(args, "-q:v", "62") {
		t.Fatalf("expected hardware quality flag, got %q", args)
	}
	if indexOf(args, "-crf") != -1 {
		t.Fatalf("expected no -crf for hardware encoder, got %q", args)
	}
}

func TestBuildArgsConstrainedBitrate(t *testing.T) {
	args := buildNormalized(t, encoding.Options{
		Codec:          "libx264",
		Quality:        50,
		MaxBitrateKbps: 2500,
	}, "in.mp4", "out.mp4")

	if !containsSequence(args, "-crf", "37", "-maxrate", "2500k", "-bufsize", "5000k") {
		t.Fatalf("expected constrained rate control, got %q", args)
	}
}

func TestBuildArgsAudioVariants(t *testing.T) {
	args := buildNormalized(t, encoding.Options{Codec: "libx264", RemoveAudio: true}, "in.mp4", "out.mp4")
	if indexOf(args, "-an") == -1 {
		t.Fatalf("expected -an when removing audio, got %q", args)
	}
	if indexOf(args, "-c:a") != -1 {
		t.Fatalf("expected no audio codec with -an, got %q", args)
	}

	args = buildNormalized(t, encoding.Options{
		Codec:            "libx264",
		AudioBitrateKbps: 192,
		DownmixStereo:    true,
		PreserveAllAudio: true,
	}, "in.mp4", "out.mp4")
	if !containsSequence(args, "-map", "0:v:0", "-map", "0:a?", "-c:a", "aac", "-b:a", "192k", "-ac", "2") {
		t.Fatalf("expected full audio mapping, got %q", args)
	}
}

func TestBuildArgsSubtitleHandling(t *testing.T) {
	args := buildNormalized(t, encoding.Options{Codec: "libx264", CopySubtitles: true}, "in.mp4", "out.mp4")
	if !containsSequence(args, "-c:s", "mov_text") {
		t.Fatalf("expected mov_text subtitles in mp4, got %q", args)
	}

	args = buildNormalized(t, encoding.Options{Codec: "libx264", Container: "mkv", CopySubtitles: true}, "in.mp4", "out.mkv")
	if !containsSequence(args, "-c:s", "copy") {
		t.Fatalf("expected copied subtitles in mkv, got %q", args)
	}

	args = buildNormalized(t, encoding.Options{Codec: "libvpx-vp9", CopySubtitles: true}, "in.mp4", "out.webm")
	if indexOf(args, "-sn") == -1 {
		t.Fatalf("expected subtitles dropped for webm, got %q", args)
	}
}

func TestBuildArgsMetadataAndScale(t *testing.T) {
	args := buildNormalized(t, encoding.Options{
		Codec:            "libx264",
		PreserveMetadata: true,
		ScaleFactor:      0.5,
	}, "in.mp4", "out.mp4")

	if !containsSequence(args, "-map_metadata", "0") {
		t.Fatalf("expected preserved metadata, got %q", args)
	}
	if !containsSequence(args, "-vf", "scale=round(iw*0.5/2)*2:-2") {
		t.Fatalf("expected even-dimension scale filter, got %q", args)
	}
}

func TestBuildArgsOutputLast(t *testing.T) {
	args := buildNormalized(t, encoding.Options{Codec: "libx265", Container: "mkv"}, "in file.mov", "out dir/result.mkv")
	if args[len(args)-1] != "out dir/result.mkv" {
		t.Fatalf("expected output path last, got %q", args)
	}
	// Paths with spaces survive because arguments never pass through a
	// shell.
	in := indexOf(args, "-i")
	if args[in+1] != "in file.mov" {
		t.Fatalf("expected verbatim input path, got %q", args)
	}
	if strings.Contains(strings.Join(args, " "), "'") {
		t.Fatalf("expected no quoting in vector, got %q", args)
	}
}

func TestBuildExtractArgs(t *testing.T) {
	args := encoding.BuildExtractArgs("in.mp4", encoding.Window{StartSeconds: 30, DurationSeconds: 3}, "slice.mp4")
	want := []string{"-y", "-nostdin", "-ss", "30", "-i", "in.mp4", "-t", "3", "-c", "copy", "slice.mp4"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("unexpected extract vector:\n got %q\nwant %q", args, want)
	}
}
