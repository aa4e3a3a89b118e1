//go:build darwin

package bridge

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreFoundation -framework Foundation -framework IOSurface

#include <stdlib.h>
#include <string.h>
#include <objc/runtime.h>
#include <objc/message.h>
#include <CoreFoundation/CoreFoundation.h>
#include <Foundation/Foundation.h>
#include <IOSurface/IOSurfaceRef.h>

// simResolveResult carries the outcome of resolving a UDID to a port + the
// port's current surface geometry. The actual class/selector lookups happen
// dynamically since CoreSimulator/SimulatorKit ship no public headers; every
// call site below centralizes one selector's signature, per the design note
// that untyped call sites are a latent memory-safety bug.
typedef struct {
    void*  servicePort;   // retained id of the resolved I/O port
    void*  device;        // retained id of the matched SimDevice
    int    width;
    int    height;
    int    stride;
    int    displayClass;
    int    error; // 0 ok, 1 framework missing, 2 device not found, 3 no surface
} simResolveResult;

static Class loadClass(const char* bundlePath, const char* className) {
    NSBundle* bundle = [NSBundle bundleWithPath:[NSString stringWithUTF8String:bundlePath]];
    if (bundle == nil || ![bundle load]) {
        return Nil;
    }
    return objc_getClass(className);
}

// resolveSimulatorDevice loads the private frameworks, obtains the shared
// service context, scans devices for a UDID match, then probes the device's
// I/O ports for a display surface.
simResolveResult resolveSimulatorDevice(const char* udid) {
    simResolveResult out;
    memset(&out, 0, sizeof(out));

    Class serviceContextClass = loadClass(
        "/Library/Developer/PrivateFrameworks/CoreSimulator.framework",
        "SimServiceContext");
    Class hidClass = loadClass(
        "/Library/Developer/PrivateFrameworks/SimulatorKit.framework",
        "SimDeviceIOPortHID");
    if (serviceContextClass == Nil || hidClass == Nil) {
        out.error = 1;
        return out;
    }

    SEL sharedCtxSel = sel_registerName("sharedServiceContextForDeveloperDir:error:");
    id (*sharedCtxFn)(id, SEL, id, id*) = (id (*)(id, SEL, id, id*))objc_msgSend;
    id developerDir = @"/Library/Developer/CommandLineTools";
    id serviceContext = sharedCtxFn((id)serviceContextClass, sharedCtxSel, developerDir, NULL);
    if (serviceContext == nil) {
        out.error = 1;
        return out;
    }

    SEL deviceSetSel = sel_registerName("defaultDeviceSetWithError:");
    id (*deviceSetFn)(id, SEL, id*) = (id (*)(id, SEL, id*))objc_msgSend;
    id deviceSet = deviceSetFn(serviceContext, deviceSetSel, NULL);
    if (deviceSet == nil) {
        out.error = 2;
        return out;
    }

    SEL devicesSel = sel_registerName("availableDevices");
    id (*devicesFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
    id devices = devicesFn(deviceSet, devicesSel);

    NSString* wantUDID = [[NSString stringWithUTF8String:udid] lowercaseString];

    id matched = nil;
    for (id device in (NSArray*)devices) {
        SEL udidSel = sel_registerName("UDID");
        id (*udidFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
        id deviceUDID = udidFn(device, udidSel);
        NSString* udidStr = [[deviceUDID description] lowercaseString];
        if ([udidStr isEqualToString:wantUDID]) {
            matched = device;
            break;
        }
    }

    if (matched == nil) {
        out.error = 2;
        return out;
    }

    out.device = (void*)CFBridgingRetain(matched);

    // Enumerate I/O ports, probe the framebufferSurface / ioSurface
    // accessors in that order, prefer displayClass == 0 ("main"), else the
    // largest width*height.
    SEL ioSel = sel_registerName("ioPorts");
    id (*ioFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
    id ports = ioFn(matched, ioSel);

    id bestPort = nil;
    long long bestArea = -1;
    int bestClass = -1;
    int bestWidth = 0, bestHeight = 0, bestStride = 0;

    for (id port in (NSArray*)ports) {
        SEL descSel = sel_registerName("descriptor");
        id (*descFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
        id descriptor = descFn(port, descSel);
        if (descriptor == nil) {
            continue;
        }

        SEL classSel = sel_registerName("displayClass");
        long (*classFn)(id, SEL) = (long (*)(id, SEL))objc_msgSend;
        long displayClass = classFn(descriptor, classSel);

        SEL surfaceSel = sel_registerName("framebufferSurface");
        id (*surfaceFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
        id surface = surfaceFn(descriptor, surfaceSel);
        if (surface == nil) {
            surfaceSel = sel_registerName("ioSurface");
            surface = surfaceFn(descriptor, surfaceSel);
        }
        if (surface == nil) {
            continue;
        }

        IOSurfaceRef ioSurf = (__bridge IOSurfaceRef)surface;
        int width = (int)IOSurfaceGetWidth(ioSurf);
        int height = (int)IOSurfaceGetHeight(ioSurf);
        int stride = (int)IOSurfaceGetBytesPerRow(ioSurf);

        if (displayClass == 0) {
            bestPort = port;
            bestClass = 0;
            bestWidth = width;
            bestHeight = height;
            bestStride = stride;
            break;
        }

        long long area = (long long)width * (long long)height;
        if (area > bestArea) {
            bestArea = area;
            bestPort = port;
            bestClass = (int)displayClass;
            bestWidth = width;
            bestHeight = height;
            bestStride = stride;
        }
    }

    if (bestPort == nil) {
        out.error = 3;
        return out;
    }

    out.servicePort = (void*)CFBridgingRetain(bestPort);
    out.width = bestWidth;
    out.height = bestHeight;
    out.stride = bestStride;
    out.displayClass = bestClass;
    return out;
}

// currentSurfaceBytes locks port's current IOSurface and copies its pixel
// bytes into a freshly malloc'd buffer; caller must free it.
void* currentSurfaceBytes(void* port, int* width, int* height, int* stride) {
    id portObj = (__bridge id)port;
    SEL descSel = sel_registerName("descriptor");
    id (*descFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
    id descriptor = descFn(portObj, descSel);
    if (descriptor == nil) {
        return NULL;
    }

    SEL surfaceSel = sel_registerName("framebufferSurface");
    id (*surfaceFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
    id surface = surfaceFn(descriptor, surfaceSel);
    if (surface == nil) {
        surfaceSel = sel_registerName("ioSurface");
        surface = surfaceFn(descriptor, surfaceSel);
    }
    if (surface == nil) {
        return NULL;
    }

    IOSurfaceRef ioSurf = (__bridge IOSurfaceRef)surface;
    IOSurfaceLock(ioSurf, kIOSurfaceLockReadOnly, NULL);

    *width = (int)IOSurfaceGetWidth(ioSurf);
    *height = (int)IOSurfaceGetHeight(ioSurf);
    *stride = (int)IOSurfaceGetBytesPerRow(ioSurf);

    size_t size = (size_t)(*stride) * (size_t)(*height);
    void* buf = malloc(size);
    if (buf != NULL) {
        memcpy(buf, IOSurfaceGetBaseAddress(ioSurf), size);
    }

    IOSurfaceUnlock(ioSurf, kIOSurfaceLockReadOnly, NULL);
    return buf;
}

void releaseRetained(void* obj) {
    if (obj != NULL) {
        CFBridgingRelease(obj);
    }
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// darwinSurface wraps an IOSurface-backed frame. Retain/Release adjust a
// plain Go counter and free nothing: Current copies the pixels into a
// Go-owned slice under IOSurfaceLock (the malloc'd C buffer is freed before
// Current returns) rather than holding the live IOSurface across frames.
type darwinSurface struct {
	mu     sync.Mutex
	refs   int
	width  int
	height int
	stride int
	pixels []byte
}

func (s *darwinSurface) Width() int  { return s.width }
func (s *darwinSurface) Height() int { return s.height }
func (s *darwinSurface) Stride() int { return s.stride }

func (s *darwinSurface) Retain() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

func (s *darwinSurface) Release() {
	s.mu.Lock()
	s.refs--
	s.mu.Unlock()
}

func (s *darwinSurface) Lock() []byte {
	s.mu.Lock()
	return s.pixels
}

func (s *darwinSurface) Unlock() {
	s.mu.Unlock()
}

type darwinDescriptor struct {
	mu       sync.Mutex
	port     unsafe.Pointer
	device   unsafe.Pointer
	sub      string
	onFrame  func(Surface)
	stopPoll chan struct{}
	current  Surface
}

func (d *darwinDescriptor) Current() (Surface, bool) {
	width, height, stride := C.int(0), C.int(0), C.int(0)
	buf := C.currentSurfaceBytes(d.port, &width, &height, &stride)
	if buf == nil {
		return nil, false
	}
	defer C.free(buf)

	size := int(stride) * int(height)
	pixels := C.GoBytes(buf, C.int(size))

	surface := &darwinSurface{width: int(width), height: int(height), stride: int(stride), pixels: pixels}
	d.mu.Lock()
	d.current = surface
	d.mu.Unlock()
	return surface, true
}

// SupportsCallback is always false: the legacy SimDeviceIOPortHID descriptor
// exposes no registration entry point on the host versions this was built
// against, so the bridge always runs the fallback poller on darwin.
func (d *darwinDescriptor) SupportsCallback() bool { return false }

func (d *darwinDescriptor) Subscribe(string, func(Surface)) error {
	return fmt.Errorf("bridge: callback subscription unsupported, use fallback poller")
}

func (d *darwinDescriptor) Unsubscribe(string) error { return nil }

func (d *darwinDescriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	C.releaseRetained(d.port)
	C.releaseRetained(d.device)
	d.port = nil
	d.device = nil
	return nil
}

type darwinResolver struct{}

// NewResolver returns the production Resolver that loads the simulator
// frameworks and performs real device lookup.
func NewResolver() Resolver {
	return darwinResolver{}
}

func (darwinResolver) Resolve(udid string) (Descriptor, error) {
	cudid := C.CString(udid)
	defer C.free(unsafe.Pointer(cudid))

	result := C.resolveSimulatorDevice(cudid)
	switch result.error {
	case 1:
		return nil, ErrFrameworkMissing
	case 2:
		return nil, ErrDeviceNotFound
	case 3:
		return nil, ErrNoDisplaySurface
	}

	return &darwinDescriptor{
		port:   unsafe.Pointer(result.servicePort),
		device: unsafe.Pointer(result.device),
	}, nil
}
