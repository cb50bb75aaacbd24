// Package driver keeps step reconciliation alive.
//
// The reconciliation core never schedules itself. The Driver owns an
// explicit Session and runs a check-in cycle on a fixed interval:
//
//  1. Stop the sensor source (safe when idle) and start it again
//  2. Accept the first reading of the cycle through a one-shot Latch;
//     later readings in the same cycle are duplicates and are dropped
//  3. Give up after ReadingTimeout so a dead source never stalls the loop
//  4. Hand the reading to the core and publish the new daily total
//
// Cycles never overlap. On Start the driver rehydrates from the store once,
// before any fresh reading arrives, and publishes the stored total.
package driver
