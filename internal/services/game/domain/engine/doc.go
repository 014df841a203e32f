// Package engine runs the cooperative tick scheduler.
//
// A World owns every core component: the request queue, the notification bus,
// the identity resolver, the session manager, the recorder, the visual lock
// pool, and the turn-phase controller. Step advances the world by one tick in
// fixed passes:
//
//  0. an attached playback driver pushes the entries stamped with this tick;
//  1. queued requests are collected, validated, and offered to the recorder;
//  2. domain handlers run, then notifications are flushed to immediate
//     subscribers, which are the only creators of visual locks;
//  3. visual locks are ticked by the tick delta;
//  4. the phase controller advances;
//  5. completed sessions past their grace tick are archived.
//
// Requests raised by handlers are queued for the next tick and never recorded.
// No pass suspends; the tick boundary is the only suspension point.
package engine
