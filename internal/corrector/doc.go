package corrector

// Wraparound precision bound.
//
// A session's device-time window is bounded by two 32-bit masked values
// (Window.Lo, Window.Hi) derived from the session's wall-clock
// start_time_ms/end_time_ms and its measured offset_ms_avg via
// clockwrap.SessionWindowFromOffset. The device clock wraps roughly
// every 71 minutes; a session window that spans a wrap is represented,
// correctly, as Lo > Hi (see internal/clockwrap).
//
// This does not resolve the case where a session runs long enough to
// wrap the device clock *twice*: a third lap would produce a timestamp
// indistinguishable from the first lap's, and no amount of masking
// recovers which lap a given trigger belongs to. Sessions are expected
// to run well under 71 minutes in practice; this is accepted as a known
// precision bound rather than solved with a wall-clock cross-check,
// since no wall-clock timestamp is captured per sample to disambiguate
// against.
