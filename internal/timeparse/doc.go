// Package timeparse converts user-entered durations and dates into time values
// and renders them back as short Chinese phrases for chat replies.
//
// Duration grammar: any ordered subset of Nd Nh Nm Ns, each part optionally
// negative ("3d5h", "-24h", "-5h-30m"). Go duration strings are accepted too.
//
// Date grammar: absolute dates and clock times understood by jinzhu/now
// ("2026-10-20 20:00", "2026-10-20", "20:00"), optionally prefixed with a
// relative day word (today/今天, tomorrow/明天, 后天).
package timeparse
