// Package factory is a small generic registry used to build pluggable modules
// (notification sinks, metrics sinks) from configuration. A module is
// described by a type name and a map of raw settings; the registered factory
// decodes the settings into its own struct and returns the implementation.
//
//	reg := factory.NewRegistry[notify.Sink]()
//	_ = reg.Register("log", func(conf map[string]any) (notify.Sink, error) {
//	    return notify.NewLogSink(logger.New("notify")), nil
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "log"})
package factory
