//go:build darwin

package encoder

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreFoundation -framework VideoToolbox -framework CoreMedia -framework CoreVideo

#include <stdlib.h>
#include <string.h>
#include <VideoToolbox/VideoToolbox.h>
#include <CoreMedia/CoreMedia.h>
#include <dispatch/dispatch.h>

typedef struct {
    void*  data;
    int    size;
    int    error; // 0 ok, 1 session create failed, 2 encode submit failed, 3 callback timeout, 4 callback reported failure
} hwEncodeResult;

typedef struct {
    VTCompressionSessionRef session;
    dispatch_semaphore_t    sem;
    hwEncodeResult          pending;
} hwSession;

static void compressionCallback(void* outputCallbackRefCon,
                                 void* sourceFrameRefCon,
                                 OSStatus status,
                                 VTEncodeInfoFlags infoFlags,
                                 CMSampleBufferRef sampleBuffer) {
    hwSession* ctx = (hwSession*)outputCallbackRefCon;
    if (status != noErr || sampleBuffer == NULL) {
        ctx->pending.error = 4;
        dispatch_semaphore_signal(ctx->sem);
        return;
    }

    CMBlockBufferRef block = CMSampleBufferGetDataBuffer(sampleBuffer);
    size_t length = 0;
    char* dataPointer = NULL;
    if (CMBlockBufferGetDataPointer(block, 0, NULL, &length, &dataPointer) != kCMBlockBufferNoErr) {
        ctx->pending.error = 4;
        dispatch_semaphore_signal(ctx->sem);
        return;
    }

    ctx->pending.data = malloc(length);
    if (ctx->pending.data != NULL) {
        memcpy(ctx->pending.data, dataPointer, length);
        ctx->pending.size = (int)length;
    } else {
        ctx->pending.error = 4;
    }
    dispatch_semaphore_signal(ctx->sem);
}

void* createHardwareSession(int width, int height, double quality, int* errOut) {
    hwSession* ctx = (hwSession*)calloc(1, sizeof(hwSession));
    ctx->sem = dispatch_semaphore_create(0);

    CFMutableDictionaryRef encoderSpec = CFDictionaryCreateMutable(kCFAllocatorDefault, 0,
        &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);

    OSStatus status = VTCompressionSessionCreate(
        kCFAllocatorDefault, width, height, kCMVideoCodecType_JPEG,
        encoderSpec, NULL, NULL, compressionCallback, ctx, &ctx->session);
    CFRelease(encoderSpec);

    if (status != noErr || ctx->session == NULL) {
        *errOut = 1;
        free(ctx);
        return NULL;
    }

    CFNumberRef q = CFNumberCreate(kCFAllocatorDefault, kCFNumberDoubleType, &quality);
    VTSessionSetProperty(ctx->session, kVTCompressionPropertyKey_Quality, q);
    CFRelease(q);

    *errOut = 0;
    return ctx;
}

hwEncodeResult encodeFrame(void* session, void* bgraBytes, int width, int height, int stride, int timeoutMs) {
    hwSession* ctx = (hwSession*)session;
    memset(&ctx->pending, 0, sizeof(ctx->pending));

    CVPixelBufferRef pixelBuffer = NULL;
    CVPixelBufferCreateWithBytes(kCFAllocatorDefault, width, height,
        kCVPixelFormatType_32BGRA, bgraBytes, stride, NULL, NULL, NULL, &pixelBuffer);
    if (pixelBuffer == NULL) {
        hwEncodeResult r = {0};
        r.error = 2;
        return r;
    }

    OSStatus status = VTCompressionSessionEncodeFrame(
        ctx->session, pixelBuffer, kCMTimeInvalid, kCMTimeInvalid, NULL, NULL, NULL);
    CVPixelBufferRelease(pixelBuffer);

    if (status != noErr) {
        hwEncodeResult r = {0};
        r.error = 2;
        return r;
    }

    long waitNs = (long)timeoutMs * 1000000L;
    long timedOut = dispatch_semaphore_wait(ctx->sem, dispatch_time(DISPATCH_TIME_NOW, waitNs));
    if (timedOut != 0) {
        hwEncodeResult r = {0};
        r.error = 3;
        return r;
    }

    return ctx->pending;
}

void freeEncodeResult(void* data) {
    if (data != NULL) {
        free(data);
    }
}

void destroyHardwareSession(void* session) {
    hwSession* ctx = (hwSession*)session;
    if (ctx == NULL) {
        return;
    }
    if (ctx->session != NULL) {
        VTCompressionSessionInvalidate(ctx->session);
        CFRelease(ctx->session);
    }
    free(ctx);
}
*/
import "C"

import (
	"errors"
	"unsafe"
)

type darwinHardwareBackend struct {
	session unsafe.Pointer
}

// newHardwareBackend stands up a VideoToolbox compression session
// configured for JPEG output at the given geometry and quality.
func newHardwareBackend(width, height int, quality float64) (backend, error) {
	var cerr C.int
	session := C.createHardwareSession(C.int(width), C.int(height), C.double(quality), &cerr)
	if session == nil {
		return nil, errors.New("encoder: hardware compression session create failed")
	}
	return &darwinHardwareBackend{session: session}, nil
}

func (b *darwinHardwareBackend) encodeHardware(pixels []byte, width, height, stride int) ([]byte, error) {
	if len(pixels) == 0 {
		return nil, ErrFailure
	}
	result := C.encodeFrame(b.session, unsafe.Pointer(&pixels[0]), C.int(width), C.int(height), C.int(stride), C.int(hardwareTimeout.Milliseconds()))

	switch result.error {
	case 3:
		return nil, ErrTimeout
	case 0:
		// ok, fall through
	default:
		return nil, ErrFailure
	}

	if result.data == nil {
		return nil, ErrFailure
	}
	defer C.freeEncodeResult(result.data)

	return C.GoBytes(result.data, result.size), nil
}

func (b *darwinHardwareBackend) close() {
	C.destroyHardwareSession(b.session)
}
