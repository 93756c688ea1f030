package models

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// LandmarkName identifies an anatomical point reported by the pose estimator.
type LandmarkName string

// Landmark names follow the 33-point BlazePose topology.
const (
	Nose           LandmarkName = "NOSE"
	LeftEyeInner   LandmarkName = "LEFT_EYE_INNER"
	LeftEye        LandmarkName = "LEFT_EYE"
	LeftEyeOuter   LandmarkName = "LEFT_EYE_OUTER"
	RightEyeInner  LandmarkName = "RIGHT_EYE_INNER"
	RightEye       LandmarkName = "RIGHT_EYE"
	RightEyeOuter  LandmarkName = "RIGHT_EYE_OUTER"
	LeftEar        LandmarkName = "LEFT_EAR"
	RightEar       LandmarkName = "RIGHT_EAR"
	MouthLeft      LandmarkName = "MOUTH_LEFT"
	MouthRight     LandmarkName = "MOUTH_RIGHT"
	LeftShoulder   LandmarkName = "LEFT_SHOULDER"
	RightShoulder  LandmarkName = "RIGHT_SHOULDER"
	LeftElbow      LandmarkName = "LEFT_ELBOW"
	RightElbow     LandmarkName = "RIGHT_ELBOW"
	LeftWrist      LandmarkName = "LEFT_WRIST"
	RightWrist     LandmarkName = "RIGHT_WRIST"
	LeftPinky      LandmarkName = "LEFT_PINKY"
	RightPinky     LandmarkName = "RIGHT_PINKY"
	LeftIndex      LandmarkName = "LEFT_INDEX"
	RightIndex     LandmarkName = "RIGHT_INDEX"
	LeftThumb      LandmarkName = "LEFT_THUMB"
	RightThumb     LandmarkName = "RIGHT_THUMB"
	LeftHip        LandmarkName = "LEFT_HIP"
	RightHip       LandmarkName = "RIGHT_HIP"
	LeftKnee       LandmarkName = "LEFT_KNEE"
	RightKnee      LandmarkName = "RIGHT_KNEE"
	LeftAnkle      LandmarkName = "LEFT_ANKLE"
	RightAnkle     LandmarkName = "RIGHT_ANKLE"
	LeftHeel       LandmarkName = "LEFT_HEEL"
	RightHeel      LandmarkName = "RIGHT_HEEL"
	LeftFootIndex  LandmarkName = "LEFT_FOOT_INDEX"
	RightFootIndex LandmarkName = "RIGHT_FOOT_INDEX"
)

// AllLandmarks lists every landmark in estimator index order.
var AllLandmarks = []LandmarkName{
	Nose, LeftEyeInner, LeftEye, LeftEyeOuter, RightEyeInner, RightEye, RightEyeOuter,
	LeftEar, RightEar, MouthLeft, MouthRight,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist,
	LeftPinky, RightPinky, LeftIndex, RightIndex, LeftThumb, RightThumb,
	LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
	LeftHeel, RightHeel, LeftFootIndex, RightFootIndex,
}

var knownLandmarks = func() map[LandmarkName]bool {
	m := make(map[LandmarkName]bool, len(AllLandmarks))
	for _, n := range AllLandmarks {
		m[n] = true
	}
	return m
}()

// Valid reports whether n is part of the landmark topology.
func (n LandmarkName) Valid() bool {
	return knownLandmarks[n]
}

// Landmark is a single named point in normalized image coordinates.
type Landmark struct {
	Name       LandmarkName `json:"name"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	Z          float64      `json:"z"`
	Visibility float64      `json:"visibility"`
}

// Vec returns the landmark position as a 3D vector.
func (l Landmark) Vec() r3.Vec {
	return r3.Vec{X: l.X, Y: l.Y, Z: l.Z}
}

// PoseFrame is the set of landmarks detected in one video frame.
type PoseFrame struct {
	Time      time.Time
	Landmarks map[LandmarkName]Landmark
}

// NewPoseFrame indexes landmarks by name.
func NewPoseFrame(at time.Time, landmarks []Landmark) PoseFrame {
	m := make(map[LandmarkName]Landmark, len(landmarks))
	for _, l := range landmarks {
		m[l.Name] = l
	}
	return PoseFrame{Time: at, Landmarks: m}
}

// Point returns the position of the named landmark, if present.
func (f PoseFrame) Point(name LandmarkName) (r3.Vec, bool) {
	l, ok := f.Landmarks[name]
	if !ok {
		return r3.Vec{}, false
	}
	return l.Vec(), true
}
