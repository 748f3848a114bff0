// Package codec implements the marshaling rules of the call boundary.
//
// Ordered token lists (subscripts, routine arguments, values) travel as one
// counted vector:
//
//	Encode([]string{"a,b", "3"}) == "3:a,b,1:3,"
//
// Token values are marshaled per Mode. In canonical mode numbers cross as
// numbers, translated between the host's numeric text ("0.5", exponent for
// very large or small magnitudes) and the embedded runtime's canonical form
// (".5", no exponent, 18 significant digits). Anything else crosses as a
// quoted literal. Replies come back as JSON text assembled by the runtime
// with EscapeForTransport, which keeps every byte above printable ASCII
// as a \u00XX escape.
package codec
