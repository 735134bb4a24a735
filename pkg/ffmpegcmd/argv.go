package ffmpegcmd

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
)

// PlaylistName is the HLS playlist file inside each camera directory.
const PlaylistName = "stream.m3u8"

// HLSOptions configures a streaming run.
type HLSOptions struct {
	Dir          string        // per-camera output directory
	Key          string        // shared access key; seeds the segment token
	RTSPTimeout  time.Duration // socket timeout handed to the RTSP demuxer
	MaxDuration  time.Duration // hard cap for a single run (-t)
	TargetChunks int           // segments kept in the playlist
}

// SnapshotOptions configures a single-frame capture.
type SnapshotOptions struct {
	Output      string
	RTSPTimeout time.Duration
	JPEGQuality int // 1 (best) .. 31
}

// SegmentToken derives the unpredictable part of segment file names.
// Knowing one camera's token says nothing about another's.
func SegmentToken(key, camID string) string {
	sum := sha256.Sum256([]byte(key + ":" + camID))
	return hex.EncodeToString(sum[:8])
}

// HLS constructs the argv that remuxes cam into a rolling HLS playlist.
//
// Ordering:
//
//	ffmpeg <global> <input flags> -i <uri> <codec> <audio> <hls muxer> <playlist>
func HLS(bin string, cam camera.Camera, o HLSOptions) []string {
	b := input(NewBuilder(bin), cam, o.RTSPTimeout)

	b.WithSwitch("-c", "copy").
		WithInt64Flag("-t", int64(o.MaxDuration/time.Second))

	if cam.AudioEnabled {
		b.WithSwitch("-map", "0:v:0", "-map", "0:a:0", "-c:a", "aac", "-b:a", "16k")
	} else {
		b.WithSwitch("-an")
	}

	segment := filepath.Join(o.Dir, "stream_"+SegmentToken(o.Key, cam.ID)+"_%d.ts")
	b.WithIntFlag("-hls_list_size", o.TargetChunks).
		WithStringFlag("-hls_flags", "delete_segments").
		WithIntFlag("-hls_time", 0).
		WithStringFlag("-hls_segment_filename", segment).
		WithStringFlag("-f", "hls").
		WithString(filepath.Join(o.Dir, PlaylistName))

	return b.BuildArgv()
}

// Snapshot constructs the argv that grabs one JPEG frame from cam.
func Snapshot(bin string, cam camera.Camera, o SnapshotOptions) []string {
	return input(NewBuilder(bin), cam, o.RTSPTimeout, "-y").
		WithIntFlag("-frames:v", 1).
		WithIntFlag("-q:v", o.JPEGQuality).
		WithStringFlag("-f", "image2").
		WithIntFlag("-update", 1).
		WithString(o.Output).
		BuildArgv()
}

// input appends the global and demuxer options shared by every invocation.
// globals are emitted with the other global switches, ahead of -i.
func input(b *Builder, cam camera.Camera, timeout time.Duration, globals ...string) *Builder {
	b.WithSwitch("-hide_banner", "-nostdin", "-nostats").
		WithSwitch(globals...).
		WithStringFlag("-loglevel", "error").
		WithFlagIf(cam.TransportTCP, "-rtsp_transport", "tcp").
		WithInt64Flag("-timeout", timeout.Microseconds()).
		WithStringFlag("-i", cam.RTSPURI)
	return b
}
