// Package control implements the proportional-derivative law that flies the
// lander.
//
// A [PD] is built for one control mode and maps an observation and a
// [GainSet] to a [dynamo.Action]:
//
//	pd := control.NewPD(dynamo.Continuous)
//	a, err := pd.SelectAction(obs, control.DefaultGains())
//
// Once either leg touches down the law is skipped and the neutral action
// is returned.
package control
