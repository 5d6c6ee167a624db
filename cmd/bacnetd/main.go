// Command bacnetd runs a single BACnet/IP device: a flag-configured
// listener with signal.NotifyContext shutdown and a JSON slog handler,
// answering Who-Is/ReadProperty/ReadPropertyMultiple against its own
// Device object.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caio-sobreiro/bacnetstack/address"
	"github.com/caio-sobreiro/bacnetstack/apdu"
	"github.com/caio-sobreiro/bacnetstack/bnerror"
	"github.com/caio-sobreiro/bacnetstack/datalink"
	"github.com/caio-sobreiro/bacnetstack/diag"
	"github.com/caio-sobreiro/bacnetstack/encoding"
	"github.com/caio-sobreiro/bacnetstack/metrics"
	"github.com/caio-sobreiro/bacnetstack/node"
	"github.com/caio-sobreiro/bacnetstack/service"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// deviceObject is the in-memory property set this device answers
// ReadProperty against, keyed by property identifier, guarded by a
// single RWMutex since reads vastly outnumber writes.
type deviceObject struct {
	mu         sync.RWMutex
	instance   uint32
	objectName string
	vendorID   uint32
}

func (d *deviceObject) readProperty(propertyID uint32) ([]encoding.ApplicationValue, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch propertyID {
	case types.PropertyObjectIdentifier:
		return []encoding.ApplicationValue{{
			Kind:   encoding.KindObjectID,
			Object: encoding.ObjectID{ObjectType: types.ObjectDevice, Instance: d.instance},
		}}, nil
	case types.PropertyObjectName:
		return []encoding.ApplicationValue{{
			Kind:       encoding.KindCharacterString,
			CharString: encoding.CharacterString{Bytes: []byte(d.objectName)},
		}}, nil
	case types.PropertyVendorIdentifier:
		return []encoding.ApplicationValue{{Kind: encoding.KindUnsignedInt, Unsigned: d.vendorID}}, nil
	default:
		return nil, bnerror.NewServiceError(bnerror.ErrorClassProperty, bnerror.ErrorCodeUnknownProperty)
	}
}

func main() {
	deviceInstance := flag.Int("device-instance", 260001, "this device's BACnet device instance number")
	objectName := flag.String("object-name", "bacnetstack-device", "this device's Device object-name")
	vendorID := flag.Int("vendor-id", 0, "this device's BACnet vendor identifier")
	iface := flag.String("iface", "", "network interface to bind (empty: first non-loopback IPv4 interface)")
	port := flag.Int("port", datalink.DefaultPort, "BACnet/IP UDP port")
	diagAddr := flag.String("diag-addr", ":8099", "address for the diagnostic HTTP server (metrics/devices)")
	addressStoreDir := flag.String("address-store", "", "directory for a durable Badger address-binding cache (empty: in-memory only)")
	addressStoreTTL := flag.Int("address-store-ttl", 30, "seconds a restored binding is trusted before requiring a fresh Who-Is")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dl, err := datalink.OpenIPDatalink(*iface, *port)
	if err != nil {
		logger.Error("failed to open datalink", "error", err)
		os.Exit(1)
	}
	defer dl.Close()

	device := &deviceObject{instance: uint32(*deviceInstance), objectName: *objectName, vendorID: uint32(*vendorID)}

	registry := apdu.NewRegistry()
	registry.SetConfirmedHandler(types.ServiceReadProperty, func(src address.Address, invokeID uint8, hdr apdu.ConfirmedHeader, payload []byte) ([]byte, error) {
		return handleReadProperty(device, payload)
	})
	registry.SetConfirmedHandler(types.ServiceReadPropertyMultiple, func(src address.Address, invokeID uint8, hdr apdu.ConfirmedHeader, payload []byte) ([]byte, error) {
		return handleReadPropertyMultiple(device, payload)
	})

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	n := node.New(dl, device.instance, registry, node.WithLogger(logger), node.WithMetrics(m))

	if *addressStoreDir != "" {
		store, err := address.OpenBadgerStore(*addressStoreDir)
		if err != nil {
			logger.Error("failed to open address store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.LoadInto(n.Addresses, int32(*addressStoreTTL)); err != nil {
			logger.Error("failed to restore address bindings", "error", err)
			os.Exit(1)
		}
		n.Addresses.OnBind = func(deviceID uint32, maxAPDU uint16, seg types.Segmentation, maxSegments uint8, addr address.Address) {
			if err := store.Put(address.PersistentBinding{
				DeviceID: deviceID, MaxAPDU: maxAPDU, Segmentation: seg, MaxSegments: maxSegments,
				Mac: append([]byte(nil), addr.Mac[:addr.MacLen]...), Net: addr.Net,
				Adr: append([]byte(nil), addr.Adr[:addr.AdrLen]...),
			}); err != nil {
				logger.Warn("failed to persist address binding", "device_instance", deviceID, "error", err)
			}
		}
	}

	registry.SetUnconfirmedHandler(types.ServiceWhoIs, func(src address.Address, serviceChoice uint8, payload []byte) {
		handleWhoIs(logger, n, device, payload)
	})

	go func() {
		srv := &http.Server{Addr: *diagAddr, Handler: diag.NewRouter(reg, n.Addresses, n.TSM)}
		logger.Info("diagnostic server listening", "address", *diagAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("diagnostic server stopped", "error", err)
		}
	}()

	n.AnnounceIAm(1476, types.SegmentationNone, device.vendorID)
	logger.Info("bacnetd started", "device_instance", device.instance, "iface", *iface, "port", *port)

	if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("node terminated unexpectedly", "error", err)
		os.Exit(1)
	}
	logger.Info("bacnetd shutdown complete")
}

// handleWhoIs answers a received Who-Is with this device's I-Am if the
// request's instance range includes (or omits, meaning unrestricted)
// this device's instance, per ASHRAE 135 clause 16.10.
func handleWhoIs(logger *slog.Logger, n *node.Node, device *deviceObject, payload []byte) {
	req, err := service.DecodeWhoIsRequest(payload)
	if err != nil {
		logger.Warn("malformed Who-Is", "error", err)
		return
	}
	device.mu.RLock()
	instance := device.instance
	vendorID := device.vendorID
	device.mu.RUnlock()
	if req.HasLimits && (instance < req.Low || instance > req.High) {
		return
	}
	n.AnnounceIAm(1476, types.SegmentationNone, vendorID)
}

func handleReadProperty(device *deviceObject, payload []byte) ([]byte, error) {
	req, err := service.DecodeReadPropertyRequest(payload)
	if err != nil {
		return nil, bnerror.NewRejectError(bnerror.RejectInvalidTag)
	}
	if req.ObjectType != types.ObjectDevice {
		return nil, bnerror.NewServiceError(bnerror.ErrorClassObject, bnerror.ErrorCodeUnknownObject)
	}
	values, err := device.readProperty(req.PropertyID)
	if err != nil {
		return nil, err
	}
	ack := service.ReadPropertyAck{
		ObjectType: req.ObjectType, ObjectInstance: req.ObjectInstance,
		PropertyID: req.PropertyID, ArrayIndex: req.ArrayIndex, Value: values,
	}
	return service.EncodeReadPropertyAck(ack), nil
}

// handleReadPropertyMultiple answers each ReadAccessSpecification
// against device, reporting per-property errors inline (unknown
// object, unknown property) rather than failing the whole request, per
// ASHRAE 135 clause 15.7.
func handleReadPropertyMultiple(device *deviceObject, payload []byte) ([]byte, error) {
	req, err := service.DecodeReadPropertyMultipleRequest(payload)
	if err != nil {
		return nil, bnerror.NewRejectError(bnerror.RejectInvalidTag)
	}

	var ack service.ReadPropertyMultipleAck
	for _, spec := range req.Specs {
		if spec.ObjectType != types.ObjectDevice {
			ack.Results = append(ack.Results, service.ReadAccessResult{
				ObjectType: spec.ObjectType, ObjectInstance: spec.ObjectInstance,
				PropertyID: types.PropertyObjectIdentifier, ArrayIndex: types.ArrayIndexAll,
				Error: &service.AccessError{Class: uint32(bnerror.ErrorClassObject), Code: uint32(bnerror.ErrorCodeUnknownObject)},
			})
			continue
		}
		for _, propID := range spec.PropertyIDs {
			result := service.ReadAccessResult{
				ObjectType: spec.ObjectType, ObjectInstance: spec.ObjectInstance,
				PropertyID: propID, ArrayIndex: spec.ArrayIndex,
			}
			values, err := device.readProperty(propID)
			if err != nil {
				class, code, ok := bnerror.AsServiceError(err)
				if !ok {
					class, code = bnerror.ErrorClassProperty, bnerror.ErrorCodeUnknownProperty
				}
				result.Error = &service.AccessError{Class: uint32(class), Code: uint32(code)}
			} else {
				result.Value = values
			}
			ack.Results = append(ack.Results, result)
		}
	}
	return service.EncodeReadPropertyMultipleAck(ack), nil
}
