package wire

import "fmt"

// Command names, exactly as they appear on the wire after "SYNC:".
const (
	CmdStartSession  = "START_SESSION"
	CmdPauseSession  = "PAUSE_SESSION"
	CmdResumeSession = "RESUME_SESSION"
	CmdStopSession   = "STOP_SESSION"
	CmdExecuteBuzz   = "EXECUTE_BUZZ"
	CmdDeactivate    = "DEACTIVATE"
	CmdHeartbeat     = "HEARTBEAT"
)

// StartSessionCmd carries everything SECONDARY needs to mirror PRIMARY's
// engine parameters for its own bookkeeping.
type StartSessionCmd struct {
	DurationSec   int64
	PatternType   string
	JitterPercent int64
	TimeOnMs      int64
	TimeOffMs     int64
	NumFingers    int64
	MirrorPattern bool
}

// Encode serialises the command to a complete EOT-terminated frame.
func (c StartSessionCmd) Encode() []byte {
	return Encode(CmdStartSession, []Field{
		F("duration_sec", c.DurationSec),
		F("pattern_type", c.PatternType),
		F("jitter_percent", c.JitterPercent),
		F("time_on_ms", c.TimeOnMs),
		F("time_off_ms", c.TimeOffMs),
		F("num_fingers", c.NumFingers),
		F("mirror_pattern", c.MirrorPattern),
	})
}

// DecodeStartSession validates data against the command's required-key
// set and produces a typed StartSessionCmd. Missing keys are reported,
// never silently defaulted.
func DecodeStartSession(data map[string]any) (StartSessionCmd, error) {
	var c StartSessionCmd
	var err error
	if c.DurationSec, err = reqInt(data, "duration_sec"); err != nil {
		return c, err
	}
	if c.PatternType, err = reqString(data, "pattern_type"); err != nil {
		return c, err
	}
	if c.JitterPercent, err = reqInt(data, "jitter_percent"); err != nil {
		return c, err
	}
	if c.TimeOnMs, err = reqInt(data, "time_on_ms"); err != nil {
		return c, err
	}
	if c.TimeOffMs, err = reqInt(data, "time_off_ms"); err != nil {
		return c, err
	}
	if c.NumFingers, err = reqInt(data, "num_fingers"); err != nil {
		return c, err
	}
	mirror, err := reqInt(data, "mirror_pattern")
	if err != nil {
		return c, err
	}
	c.MirrorPattern = mirror != 0
	return c, nil
}

// StopSessionCmd carries the reason a session stopped.
type StopSessionCmd struct {
	Reason string
}

func (c StopSessionCmd) Encode() []byte {
	return Encode(CmdStopSession, []Field{F("reason", c.Reason)})
}

func DecodeStopSession(data map[string]any) (StopSessionCmd, error) {
	reason, err := reqString(data, "reason")
	return StopSessionCmd{Reason: reason}, err
}

// ExecuteBuzzCmd is the per-burst activation command, the hot-path message
// of the whole protocol.
type ExecuteBuzzCmd struct {
	LeftFinger  int64
	RightFinger int64
	Amplitude   int64
	Seq         int64
	TimestampUs int64
}

func (c ExecuteBuzzCmd) Encode() []byte {
	return Encode(CmdExecuteBuzz, []Field{
		F("left_finger", c.LeftFinger),
		F("right_finger", c.RightFinger),
		F("amplitude", c.Amplitude),
		F("seq", c.Seq),
		F("timestamp", c.TimestampUs),
	})
}

func DecodeExecuteBuzz(data map[string]any) (ExecuteBuzzCmd, error) {
	var c ExecuteBuzzCmd
	var err error
	if c.LeftFinger, err = reqInt(data, "left_finger"); err != nil {
		return c, err
	}
	if c.RightFinger, err = reqInt(data, "right_finger"); err != nil {
		return c, err
	}
	if c.Amplitude, err = reqInt(data, "amplitude"); err != nil {
		return c, err
	}
	// The receive path tolerates missing seq/timestamp, but senders
	// always include them, so the typed decode requires both.
	if c.Seq, err = reqInt(data, "seq"); err != nil {
		return c, err
	}
	if c.TimestampUs, err = reqInt(data, "timestamp"); err != nil {
		return c, err
	}
	return c, nil
}

// DeactivateCmd silences a specific left/right finger pair.
type DeactivateCmd struct {
	LeftFinger  int64
	RightFinger int64
}

func (c DeactivateCmd) Encode() []byte {
	return Encode(CmdDeactivate, []Field{
		F("left_finger", c.LeftFinger),
		F("right_finger", c.RightFinger),
	})
}

func DecodeDeactivate(data map[string]any) (DeactivateCmd, error) {
	var c DeactivateCmd
	var err error
	if c.LeftFinger, err = reqInt(data, "left_finger"); err != nil {
		return c, err
	}
	if c.RightFinger, err = reqInt(data, "right_finger"); err != nil {
		return c, err
	}
	return c, nil
}

// HeartbeatCmd carries the sender's microsecond boot-relative timestamp.
type HeartbeatCmd struct {
	TimestampUs int64
}

func (c HeartbeatCmd) Encode() []byte {
	return Encode(CmdHeartbeat, []Field{F("ts", c.TimestampUs)})
}

func DecodeHeartbeat(data map[string]any) (HeartbeatCmd, error) {
	ts, err := reqInt(data, "ts")
	return HeartbeatCmd{TimestampUs: ts}, err
}

// EncodePauseSession and EncodeResumeSession have no DATA payload.
func EncodePauseSession() []byte  { return Encode(CmdPauseSession, nil) }
func EncodeResumeSession() []byte { return Encode(CmdResumeSession, nil) }

func reqInt(data map[string]any, key string) (int64, error) {
	v, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing required key %q", ErrProtocolMalformed, key)
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: key %q is not an integer", ErrProtocolMalformed, key)
	}
	return n, nil
}

func reqString(data map[string]any, key string) (string, error) {
	v, ok := data[key]
	if !ok {
		return "", fmt.Errorf("%w: missing required key %q", ErrProtocolMalformed, key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return fmt.Sprintf("%d", t), nil
	default:
		return "", fmt.Errorf("%w: key %q has unexpected type", ErrProtocolMalformed, key)
	}
}
