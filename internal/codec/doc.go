// Package codec defines the encoder registry and the quality scale.
//
// Every supported encoder is described by a static Codec entry: its ffmpeg
// name, the containers it can write, its rate-control range, and how its
// perceived quality relates to the other encoders. The package maps the
// user-facing 0-100 quality slider onto each encoder's native rate scale
// and converts slider positions between encoders so switching codecs keeps
// roughly the same visual quality.
package codec
