// Package gps drives the cellular modem's GPS receiver over its serial AT
// command interface.
//
// The Engine owns the serial port for the lifetime of the process. It sends
// one command at a time, waits for the reply marker or the command timeout,
// and turns +CGPSINFO replies into a Fix.
//
// GPS loss never aborts telemetry: malformed, out-of-range or empty replies
// all produce the null island fix (0,0,0,0) tagged NoFixYet. Only a
// transport failure or a reply without the +CGPSINFO marker is an error.
//
// # Wire format
//
//	AT+CGPSINFO
//	+CGPSINFO: 4319.736021,N,00824.498574,W,150724,162016.0,176.0,0.0,
//	OK
//
// Fields are latitude (DDMM.MMMMMM), hemisphere, longitude (DDDMM.MMMMMM),
// hemisphere, date, UTC time, altitude in metres and speed, optionally
// followed by a course.
package gps
