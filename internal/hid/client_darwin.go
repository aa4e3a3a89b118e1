//go:build darwin

package hid

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreFoundation -framework Foundation -framework CoreGraphics

#include <stdlib.h>
#include <string.h>
#include <objc/runtime.h>
#include <objc/message.h>
#include <dispatch/dispatch.h>
#include <CoreFoundation/CoreFoundation.h>
#include <CoreGraphics/CoreGraphics.h>
#include <Foundation/Foundation.h>

typedef struct {
    void* device;     // retained SimDevice matching udid
    void* hidClient;  // retained SimDeviceLegacyHIDClient
    int   width;
    int   height;
    double scale;
    int   error; // 0 ok, 1 framework missing, 2 device not found
} hidResolveResult;

static Class loadHIDClass(const char* bundlePath, const char* className) {
    NSBundle* bundle = [NSBundle bundleWithPath:[NSString stringWithUTF8String:bundlePath]];
    if (bundle == nil || ![bundle load]) {
        return Nil;
    }
    return objc_getClass(className);
}

// resolveHIDClient mirrors the device bridge's UDID lookup and then
// constructs a legacy HID client bound to the matched device.
hidResolveResult resolveHIDClient(const char* udid) {
    hidResolveResult out;
    memset(&out, 0, sizeof(out));

    Class serviceContextClass = loadHIDClass(
        "/Library/Developer/PrivateFrameworks/CoreSimulator.framework",
        "SimServiceContext");
    Class legacyHIDClass = loadHIDClass(
        "/Library/Developer/PrivateFrameworks/SimulatorKit.framework",
        "SimDeviceLegacyHIDClient");
    if (serviceContextClass == Nil || legacyHIDClass == Nil) {
        out.error = 1;
        return out;
    }

    SEL sharedCtxSel = sel_registerName("sharedServiceContextForDeveloperDir:error:");
    id (*sharedCtxFn)(id, SEL, id, id*) = (id (*)(id, SEL, id, id*))objc_msgSend;
    id serviceContext = sharedCtxFn((id)serviceContextClass, sharedCtxSel,
        @"/Library/Developer/CommandLineTools", NULL);
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
        if ([[[deviceUDID description] lowercaseString] isEqualToString:wantUDID]) {
            matched = device;
            break;
        }
    }
    if (matched == nil) {
        out.error = 2;
        return out;
    }
    out.device = (void*)CFBridgingRetain(matched);

    SEL ioClientSel = sel_registerName("io");
    id (*ioClientFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
    id ioClient = ioClientFn(matched, ioClientSel);

    SEL allocSel = sel_registerName("alloc");
    id (*allocFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
    id hidAlloc = allocFn((id)legacyHIDClass, allocSel);

    SEL initSel = sel_registerName("initWithDeviceIO:error:");
    id (*initFn)(id, SEL, id, id*) = (id (*)(id, SEL, id, id*))objc_msgSend;
    id hidClient = initFn(hidAlloc, initSel, ioClient, NULL);
    if (hidClient == nil) {
        out.error = 2;
        return out;
    }
    out.hidClient = (void*)CFBridgingRetain(hidClient);

    SEL mainScreenSel = sel_registerName("mainScreenSize");
    id (*sizeFn)(id, SEL) = (id (*)(id, SEL))objc_msgSend;
    id sizeValue = sizeFn(matched, mainScreenSel);
    if (sizeValue != nil) {
        CGSize size = {0, 0};
        [(NSValue*)sizeValue getValue:&size];
        out.width = (int)size.width;
        out.height = (int)size.height;
    }

    SEL scaleSel = sel_registerName("mainScreenScale");
    double (*scaleFn)(id, SEL) = (double (*)(id, SEL))objc_msgSend;
    out.scale = scaleFn(matched, scaleSel);

    return out;
}

// sendHIDMessage submits a serialized message through the legacy HID
// client. Falls back to the synchronous selector when no async
// "free when done" variant is available.
int sendHIDMessage(void* hidClient, void* bytes, int length) {
    id client = (__bridge id)hidClient;
    NSData* data = [NSData dataWithBytes:bytes length:(NSUInteger)length];

    SEL asyncSel = sel_registerName("sendWithMessage:freeWhenDone:completionQueue:completion:");
    if ([client respondsToSelector:asyncSel]) {
        void (*asyncFn)(id, SEL, id, BOOL, id, id) =
            (void (*)(id, SEL, id, BOOL, id, id))objc_msgSend;
        asyncFn(client, asyncSel, data, YES, dispatch_get_main_queue(), nil);
        return 0;
    }

    SEL syncSel = sel_registerName("sendMessageSync:");
    if ([client respondsToSelector:syncSel]) {
        BOOL (*syncFn)(id, SEL, id) = (BOOL (*)(id, SEL, id))objc_msgSend;
        BOOL ok = syncFn(client, syncSel, data);
        return ok ? 0 : 1;
    }

    return 1;
}

void releaseHIDRetained(void* obj) {
    if (obj != NULL) {
        CFBridgingRelease(obj);
    }
}
*/
import "C"

import (
	"errors"
	"time"
	"unsafe"
)

type darwinClient struct {
	device    unsafe.Pointer
	hidClient unsafe.Pointer
	width     int
	height    int
	scale     float64
}

func (c *darwinClient) ScreenSize() (int, int, float64, error) {
	return c.width, c.height, c.scale, nil
}

func (c *darwinClient) Send(message []byte) error {
	if len(message) == 0 {
		return errors.New("hid: empty message")
	}
	rc := C.sendHIDMessage(c.hidClient, unsafe.Pointer(&message[0]), C.int(len(message)))
	if rc != 0 {
		return errors.New("hid: send failed")
	}
	return nil
}

func (c *darwinClient) Close() error {
	C.releaseHIDRetained(c.hidClient)
	C.releaseHIDRetained(c.device)
	return nil
}

type darwinResolver struct{}

// NewResolver returns the production HID Resolver.
func NewResolver() Resolver {
	return darwinResolver{}
}

func (darwinResolver) Resolve(udid string) (Client, error) {
	cudid := C.CString(udid)
	defer C.free(unsafe.Pointer(cudid))

	result := C.resolveHIDClient(cudid)
	switch result.error {
	case 1:
		return nil, errors.New("hid: required simulator framework not found")
	case 2:
		return nil, errors.New("hid: no device matches requested udid")
	}

	return &darwinClient{
		device:    unsafe.Pointer(result.device),
		hidClient: unsafe.Pointer(result.hidClient),
		width:     int(result.width),
		height:    int(result.height),
		scale:     float64(result.scale),
	}, nil
}

// machAbsoluteTime approximates mach_absolute_time with a monotonic
// nanosecond counter; the exact tick units are opaque to readers of the
// wire format, so any monotonically increasing value is wire-valid. The
// counter is nanoseconds elapsed since machClockStart on Go's monotonic clock.
var machClockStart = time.Now()

func machAbsoluteTime() uint64 {
	return uint64(time.Since(machClockStart))
}
