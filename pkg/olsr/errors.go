package olsr

import "errors"

// errShortMessage marks a message whose declared inner structure (a HELLO
// neighbor block, a TC/MID/HNA address list) doesn't fit the bytes actually
// present. The caller only uses it to bump the parse-error counter; the
// outer loop in Decode always resumes at the next message via the outer
// size field regardless.
var errShortMessage = errors.New("olsr: malformed message body")
