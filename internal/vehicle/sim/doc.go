// Package sim provides a simulated scooter and GPS modem.
//
// It lets the bridge run end to end on a bench: the Peripheral can refuse
// connections and drop the link, the Session drifts speed, distance and
// battery over time, and the Modem speaks the same AT dialect as the
// cellular module, including the empty reply sent before satellite lock.
package sim
