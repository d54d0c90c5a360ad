// Package wire implements the newline-delimited JSON format pods stream
// query results in.
//
// Each line is one record: an object, a channel statistic, or an error
// record of the form {"error": "..."}. Parser decodes records lazily from a
// byte stream, however it happens to be chunked; Encoder writes them.
//
// A malformed line never ends the sequence. It is reported as a Result
// carrying the error and the source, and parsing continues with the next
// line.
package wire
