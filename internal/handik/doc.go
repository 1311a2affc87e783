// Package handik stabilizes raw skeletal hand tracking and retargets it onto
// an avatar: noisy, intermittently dropped per-hand samples go in, arm IK
// goals with blend weights and finger joint rotations come out.
//
// Per tick and per hand the stages run in a fixed order: classification,
// left/right remapping, smoothing, sub-step interpolation, acquisition and
// loss fading, emission.
package handik
